package document

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// Rasterizer renders every page of a PDF into an image file.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// FitzRasterizer renders with MuPDF through go-fitz.
type FitzRasterizer struct {
	DPI     float64
	Quality int
}

func NewFitzRasterizer(dpi float64) *FitzRasterizer {
	if dpi <= 0 {
		dpi = 150
	}
	return &FitzRasterizer{DPI: dpi, Quality: 90}
}

// Rasterize writes page_001.jpg, page_002.jpg, ... into outDir and returns
// their paths in page order.
func (r *FitzRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}

	paths := make([]string, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, r.DPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}

		outputPath := filepath.Join(outDir, PageFileName(i, ".jpg"))
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("create page %d: %w", i+1, err)
		}
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: r.Quality})
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		paths = append(paths, outputPath)
	}
	return paths, nil
}

// PageFileName returns the 1-based page file name for a 0-based index.
func PageFileName(index int, ext string) string {
	return fmt.Sprintf("page_%03d%s", index+1, ext)
}
