package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vrsandeep/transdoc-go/internal/models"
)

// NewDocument describes a processed document ready to be recorded.
type NewDocument struct {
	Title         string
	JobID         int64
	CollectionID  int64
	LinkedPath    string
	ThumbnailPath string
	PageSets      []NewPageSet
}

// NewPageSet is one language's page files, in page order. Positions holds
// each file's page number in the source document; when it is empty the file
// index is used.
type NewPageSet struct {
	Language  string
	Title     string
	Filename  string
	Files     []string
	Positions []int
}

// CreateDocument records a document, its page sets and pages, and attaches
// it to the collection when CollectionID is non-zero. It runs in a single
// transaction.
func (s *Store) CreateDocument(doc NewDocument) (*models.Document, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if doc.CollectionID > 0 {
		var exists int
		err := tx.QueryRow("SELECT 1 FROM collections WHERE id = ?", doc.CollectionID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCollectionNotFound
		}
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	res, err := tx.Exec(`
		INSERT INTO documents (title, job_id, linked_path, thumbnail_path, created_at)
		VALUES (?, ?, ?, ?, ?)`, doc.Title, doc.JobID, doc.LinkedPath, doc.ThumbnailPath, now)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	docID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	stored := &models.Document{
		ID:            docID,
		Title:         doc.Title,
		JobID:         doc.JobID,
		LinkedPath:    doc.LinkedPath,
		ThumbnailPath: doc.ThumbnailPath,
		CreatedAt:     now,
	}

	pageStmt, err := tx.Prepare("INSERT INTO pages (page_set_id, position, file_path) VALUES (?, ?, ?)")
	if err != nil {
		return nil, err
	}
	defer pageStmt.Close()

	for _, ps := range doc.PageSets {
		res, err := tx.Exec(`
			INSERT INTO page_sets (document_id, language, title, filename) VALUES (?, ?, ?, ?)`,
			docID, ps.Language, ps.Title, ps.Filename)
		if err != nil {
			return nil, fmt.Errorf("insert %s page set: %w", ps.Language, err)
		}
		psID, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		set := &models.StoredPageSet{ID: psID, DocumentID: docID, Language: ps.Language, Title: ps.Title, Filename: ps.Filename}
		if len(ps.Positions) > 0 && len(ps.Positions) != len(ps.Files) {
			return nil, fmt.Errorf("%s page set: %d positions for %d files", ps.Language, len(ps.Positions), len(ps.Files))
		}
		for i, f := range ps.Files {
			pos := i
			if len(ps.Positions) > 0 {
				pos = ps.Positions[i]
			}
			if _, err := pageStmt.Exec(psID, pos, f); err != nil {
				return nil, fmt.Errorf("insert page %d: %w", pos, err)
			}
			set.Pages = append(set.Pages, models.StoredPage{Position: pos, FilePath: f})
		}
		stored.PageSets = append(stored.PageSets, set)
	}

	if doc.CollectionID > 0 {
		if _, err := tx.Exec("INSERT INTO collection_documents (collection_id, document_id) VALUES (?, ?)", doc.CollectionID, docID); err != nil {
			return nil, fmt.Errorf("attach to collection: %w", err)
		}
		if _, err := tx.Exec("UPDATE collections SET updated_at = ? WHERE id = ?", now, doc.CollectionID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

// GetDocument retrieves a document with its page sets and pages.
func (s *Store) GetDocument(id int64) (*models.Document, error) {
	var d models.Document
	err := s.db.QueryRow(`
		SELECT id, title, job_id, linked_path, thumbnail_path, created_at
		FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &d.Title, &d.JobID, &d.LinkedPath, &d.ThumbnailPath, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT ps.id, ps.language, ps.title, ps.filename, p.position, p.file_path
		FROM page_sets ps
		LEFT JOIN pages p ON p.page_set_id = ps.id
		WHERE ps.document_id = ?
		ORDER BY ps.id ASC, p.position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[int64]*models.StoredPageSet{}
	for rows.Next() {
		var psID int64
		var lang, title, filename string
		var position sql.NullInt64
		var path sql.NullString
		if err := rows.Scan(&psID, &lang, &title, &filename, &position, &path); err != nil {
			return nil, err
		}
		set, ok := byID[psID]
		if !ok {
			set = &models.StoredPageSet{ID: psID, DocumentID: id, Language: lang, Title: title, Filename: filename}
			byID[psID] = set
			d.PageSets = append(d.PageSets, set)
		}
		if position.Valid {
			set.Pages = append(set.Pages, models.StoredPage{Position: int(position.Int64), FilePath: path.String})
		}
	}
	return &d, rows.Err()
}

// GetDocumentByJob returns the document produced by a job.
func (s *Store) GetDocumentByJob(jobID int64) (*models.Document, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM documents WHERE job_id = ? ORDER BY id DESC LIMIT 1", jobID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetDocument(id)
}
