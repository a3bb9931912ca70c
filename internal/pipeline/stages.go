package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/cache"
	"github.com/vrsandeep/transdoc-go/internal/document"
	"github.com/vrsandeep/transdoc-go/internal/llm"
	"github.com/vrsandeep/transdoc-go/internal/models"
	"github.com/vrsandeep/transdoc-go/internal/store"
	"golang.org/x/crypto/blake2b"
)

const (
	markdownPrompt = "You are a markdown parser, convert images to markdown format. Format tables using markdown tables. Replace images with as accurate descriptions as possible, and never output image links."

	translatePrompt = "You are a professional translator, translate the following text into %s, and cannot output any other extra content: "

	thumbnailName = "thumbnail.jpg"
)

var ErrUnsupportedExtension = errors.New("unsupported file extension")

// Run carries one job through the stages. Each stage stores a fresh page set
// and leaves the earlier ones untouched.
type Run struct {
	Job       *models.Job
	WorkDir   string
	Thumbnail string

	Images   *models.PageSet
	Source   *models.PageSet
	Target   *models.PageSet
	Document *models.Document
}

func (r *Run) cleanup() {
	if r.WorkDir == "" {
		return
	}
	if err := os.RemoveAll(r.WorkDir); err != nil {
		log.Warn().Err(err).Str("dir", r.WorkDir).Msg("could not remove work dir")
	}
}

// metadata summarizes how many pages survived each stage.
func (r *Run) metadata() map[string]any {
	m := map[string]any{}
	if r.Images != nil {
		m["pages_total"] = r.Images.Len()
	}
	if r.Source != nil {
		m["pages_extracted"] = r.Source.Len()
	}
	if r.Target != nil {
		m["pages_translated"] = r.Target.Len()
	}
	if r.Document != nil {
		m["document_id"] = r.Document.ID
		m["storage_path"] = r.Document.LinkedPath
	}
	return m
}

// Stages is the work a job goes through. Admit runs before the job leaves
// Pending and must not touch any remote backend.
type Stages interface {
	Admit(job *models.Job) error
	Ingest(ctx context.Context, run *Run) error
	Extract(ctx context.Context, run *Run) error
	Translate(ctx context.Context, run *Run) error
	Persist(ctx context.Context, run *Run) error
}

// Chatter is the remote-model surface the stages need. *pool.Pool
// satisfies it.
type Chatter interface {
	ChatWithText(ctx context.Context, message string) (string, error)
	ChatWithImage(ctx context.Context, message string, img llm.Image) (string, error)
	Size() int
}

// DocumentStore records finished documents.
type DocumentStore interface {
	CreateDocument(doc store.NewDocument) (*models.Document, error)
}

type StageConfig struct {
	StorageRoot    string
	WorkRoot       string
	TargetLanguage string
	SourceCode     string
	TargetCode     string
	FanoutFactor   int
	FanoutCeiling  int
}

// DocumentStages converts, reads and translates office documents and PDFs.
type DocumentStages struct {
	cfg        StageConfig
	converter  document.Converter
	rasterizer document.Rasterizer
	chat       Chatter
	cache      cache.Cache
	docs       DocumentStore
}

// NewDocumentStages wires the stage implementation. c may be nil to disable
// response caching.
func NewDocumentStages(cfg StageConfig, conv document.Converter, rast document.Rasterizer, chat Chatter, c cache.Cache, docs DocumentStore) *DocumentStages {
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "Simplified Chinese"
	}
	if cfg.SourceCode == "" {
		cfg.SourceCode = "en"
	}
	if cfg.TargetCode == "" {
		cfg.TargetCode = "zh"
	}
	if cfg.FanoutFactor <= 0 {
		cfg.FanoutFactor = 2
	}
	if cfg.FanoutCeiling <= 0 {
		cfg.FanoutCeiling = 16
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	return &DocumentStages{cfg: cfg, converter: conv, rasterizer: rast, chat: chat, cache: c, docs: docs}
}

func sourceExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func (d *DocumentStages) Admit(job *models.Job) error {
	switch ext := sourceExt(job.SourcePath); ext {
	case ".pdf", ".docx", ".pptx":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
}

func (d *DocumentStages) Ingest(ctx context.Context, run *Run) error {
	if err := d.Admit(run.Job); err != nil {
		return err
	}
	src := run.Job.SourcePath
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("source file: %w", err)
	}

	run.WorkDir = filepath.Join(d.cfg.WorkRoot, "transdoc-"+uuid.NewString())
	if err := os.MkdirAll(run.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	pdfPath := src
	if sourceExt(src) != ".pdf" {
		if err := document.RequireOfficeContainer(ctx, src); err != nil {
			return err
		}
		converted, err := d.converter.ToPDF(ctx, src, run.WorkDir)
		if err != nil {
			return err
		}
		pdfPath = converted
	}

	images, err := d.rasterizer.Rasterize(ctx, pdfPath, filepath.Join(run.WorkDir, "pages"))
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("document has no pages")
	}

	thumb := filepath.Join(run.WorkDir, thumbnailName)
	if err := document.WriteThumbnail(images[0], thumb); err != nil {
		log.Warn().Err(err).Int64("job_id", run.Job.ID).Msg("could not create thumbnail")
	} else {
		run.Thumbnail = thumb
	}

	set := &models.PageSet{
		Title:       run.Job.Title,
		ContentType: models.ContentImage,
		Filename:    filepath.Base(src),
		Pages:       make([]models.Page, len(images)),
	}
	for i, p := range images {
		set.Pages[i] = models.Page{Index: i, ImagePath: p}
	}
	run.Images = set
	return nil
}

// limit bounds page-level fan-out by pool size.
func (d *DocumentStages) limit() int {
	return fanoutLimit(d.chat.Size(), d.cfg.FanoutFactor, d.cfg.FanoutCeiling)
}

func (d *DocumentStages) Extract(ctx context.Context, run *Run) error {
	if run.Images == nil {
		return fmt.Errorf("no image pages to extract")
	}
	pages, errs := fanOut(ctx, run.Images.Pages, d.limit(), func(ctx context.Context, i int, p models.Page) (models.Page, error) {
		text, err := d.cachedImage(ctx, p.ImagePath)
		if err != nil {
			return models.Page{}, err
		}
		return models.Page{Index: p.Index, Content: text}, nil
	})
	logDropped(run.Job.ID, "extract", errs)
	if len(pages) == 0 {
		return fmt.Errorf("no pages survived extraction")
	}
	run.Source = &models.PageSet{
		Title:       run.Images.Title,
		ContentType: models.ContentText,
		Filename:    run.Images.Filename,
		Pages:       pages,
	}
	return nil
}

func (d *DocumentStages) Translate(ctx context.Context, run *Run) error {
	if run.Source == nil {
		return fmt.Errorf("no text pages to translate")
	}
	prompt := fmt.Sprintf(translatePrompt, d.cfg.TargetLanguage)
	pages, errs := fanOut(ctx, run.Source.Pages, d.limit(), func(ctx context.Context, i int, p models.Page) (models.Page, error) {
		text, err := d.cachedText(ctx, prompt+p.Content)
		if err != nil {
			return models.Page{}, err
		}
		return models.Page{Index: p.Index, Content: text}, nil
	})
	logDropped(run.Job.ID, "translate", errs)
	if len(pages) == 0 {
		return fmt.Errorf("no pages survived translation")
	}
	run.Target = &models.PageSet{
		Title:       run.Source.Title,
		ContentType: models.ContentText,
		Filename:    run.Source.Filename,
		Pages:       pages,
	}
	return nil
}

// Persist moves the upload into content-addressed storage and records the
// document. On failure the upload is put back and the storage dir removed.
func (d *DocumentStages) Persist(ctx context.Context, run *Run) (err error) {
	if run.Source == nil || run.Target == nil {
		return fmt.Errorf("nothing to persist")
	}
	src := run.Job.SourcePath
	digest, err := fileDigest(src)
	if err != nil {
		return fmt.Errorf("hash source: %w", err)
	}
	dir := filepath.Join(d.cfg.StorageRoot, fmt.Sprintf("%s-%d", digest, run.Job.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	original := filepath.Join(dir, "original"+sourceExt(src))
	moved := false
	defer func() {
		if err == nil {
			return
		}
		if moved {
			if restoreErr := moveFile(original, src); restoreErr != nil {
				log.Error().Err(restoreErr).Str("file", src).Msg("could not restore upload")
			}
		}
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", dir).Msg("could not remove storage dir")
		}
	}()

	if err := moveFile(src, original); err != nil {
		return fmt.Errorf("move original: %w", err)
	}
	moved = true

	var thumbnail string
	if run.Thumbnail != "" {
		thumbnail = filepath.Join(dir, thumbnailName)
		if err := moveFile(run.Thumbnail, thumbnail); err != nil {
			return fmt.Errorf("move thumbnail: %w", err)
		}
	}

	sourceSet, err := writePages(filepath.Join(dir, d.cfg.SourceCode), run.Source)
	if err != nil {
		return err
	}
	targetSet, err := writePages(filepath.Join(dir, d.cfg.TargetCode), run.Target)
	if err != nil {
		return err
	}
	sourceSet.Language, sourceSet.Title, sourceSet.Filename = d.cfg.SourceCode, run.Source.Title, filepath.Base(original)
	targetSet.Language, targetSet.Title, targetSet.Filename = d.cfg.TargetCode, run.Target.Title, filepath.Base(original)

	doc, err := d.docs.CreateDocument(store.NewDocument{
		Title:         run.Job.Title,
		JobID:         run.Job.ID,
		CollectionID:  run.Job.CollectionID,
		LinkedPath:    dir,
		ThumbnailPath: thumbnail,
		PageSets:      []store.NewPageSet{sourceSet, targetSet},
	})
	if err != nil {
		return fmt.Errorf("record document: %w", err)
	}
	run.Document = doc
	return nil
}

func (d *DocumentStages) cachedImage(ctx context.Context, path string) (string, error) {
	if d.cache == nil {
		return d.chat.ChatWithImage(ctx, markdownPrompt, llm.FileImage(path))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return d.throughCache(ctx, cache.Key(markdownPrompt, raw), func() (string, error) {
		return d.chat.ChatWithImage(ctx, markdownPrompt, llm.FileImage(path))
	})
}

func (d *DocumentStages) cachedText(ctx context.Context, message string) (string, error) {
	if d.cache == nil {
		return d.chat.ChatWithText(ctx, message)
	}
	return d.throughCache(ctx, cache.Key(message, nil), func() (string, error) {
		return d.chat.ChatWithText(ctx, message)
	})
}

// throughCache consults the cache before calling fn. Cache failures only
// cost a remote call.
func (d *DocumentStages) throughCache(ctx context.Context, key string, fn func() (string, error)) (string, error) {
	if hit, err := d.cache.Get(ctx, key); err == nil {
		return hit, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Msg("response cache read failed")
	}
	out, err := fn()
	if err != nil {
		return "", err
	}
	if err := d.cache.Set(ctx, key, out); err != nil {
		log.Warn().Err(err).Msg("response cache write failed")
	}
	return out, nil
}

func logDropped(jobID int64, stage string, errs []error) {
	for i, err := range errs {
		if err != nil {
			log.Warn().Err(err).Int64("job_id", jobID).Str("stage", stage).Int("page", i+1).Msg("page dropped")
		}
	}
}

// writePages names each file by the page's source index, so the same page
// has the same file name in every language directory.
func writePages(dir string, set *models.PageSet) (store.NewPageSet, error) {
	var out store.NewPageSet
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return out, fmt.Errorf("create page dir: %w", err)
	}
	out.Files = make([]string, len(set.Pages))
	out.Positions = make([]int, len(set.Pages))
	for i, p := range set.Pages {
		path := filepath.Join(dir, document.PageFileName(p.Index, ".md"))
		if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
			return out, fmt.Errorf("write page %d: %w", p.Index+1, err)
		}
		out.Files[i] = path
		out.Positions[i] = p.Index
	}
	return out, nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// moveFile renames src to dst, copying when the two are on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}
