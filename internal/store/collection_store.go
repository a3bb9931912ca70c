package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/vrsandeep/transdoc-go/internal/models"
)

// CreateCollection inserts a new, empty collection.
func (s *Store) CreateCollection(name string) (*models.Collection, error) {
	now := time.Now()
	res, err := s.db.Exec("INSERT INTO collections (name, created_at, updated_at) VALUES (?, ?, ?)", name, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Collection{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetCollection retrieves a collection by ID.
func (s *Store) GetCollection(id int64) (*models.Collection, error) {
	var c models.Collection
	err := s.db.QueryRow("SELECT id, name, created_at, updated_at FROM collections WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCollectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCollectionDocuments returns the documents attached to a collection,
// newest first. Page sets are not loaded.
func (s *Store) ListCollectionDocuments(collectionID int64) ([]*models.Document, error) {
	if _, err := s.GetCollection(collectionID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT d.id, d.title, d.job_id, d.linked_path, d.thumbnail_path, d.created_at
		FROM documents d
		JOIN collection_documents cd ON cd.document_id = d.id
		WHERE cd.collection_id = ?
		ORDER BY d.created_at DESC, d.id DESC`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.JobID, &d.LinkedPath, &d.ThumbnailPath, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}
