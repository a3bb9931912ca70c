package models

import "time"

// ContentType tags what the pages of a PageSet carry.
type ContentType string

const (
	ContentImage ContentType = "image"
	ContentText  ContentType = "text"
)

// Page is one ordinal entry of a PageSet. Image pages set ImagePath,
// text pages set Content. Index is the zero-based page number in the source
// document and survives dropped pages.
type Page struct {
	Index     int    `json:"index"`
	ImagePath string `json:"image_path,omitempty"`
	Content   string `json:"content,omitempty"`
}

// PageSet is an ordered run of pages sharing a content type.
type PageSet struct {
	Title       string      `json:"title"`
	Pages       []Page      `json:"pages"`
	ContentType ContentType `json:"content_type"`
	Filename    string      `json:"filename"`
}

// Len returns the number of pages.
func (p *PageSet) Len() int { return len(p.Pages) }

type Collection struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Document struct {
	ID            int64            `json:"id"`
	Title         string           `json:"title"`
	JobID         int64            `json:"job_id"`
	LinkedPath    string           `json:"linked_path"`
	ThumbnailPath string           `json:"thumbnail_path"`
	CreatedAt     time.Time        `json:"created_at"`
	PageSets      []*StoredPageSet `json:"page_sets,omitempty"`
}

// StoredPageSet is a persisted language-specific page set of a Document.
type StoredPageSet struct {
	ID         int64        `json:"id"`
	DocumentID int64        `json:"document_id"`
	Language   string       `json:"language"`
	Title      string       `json:"title"`
	Filename   string       `json:"filename"`
	Pages      []StoredPage `json:"pages"`
}

type StoredPage struct {
	Position int    `json:"position"`
	FilePath string `json:"file_path"`
}
