package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/transdoc-go/internal/store"
	"github.com/vrsandeep/transdoc-go/internal/testutil"
)

func TestCreateDocumentWithCollection(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	col, err := s.CreateCollection("Papers")
	require.NoError(t, err)
	job, _ := s.CreateJob("Paper", "/uploads/paper.pdf", col.ID)

	doc, err := s.CreateDocument(store.NewDocument{
		Title:         "Paper",
		JobID:         job.ID,
		CollectionID:  col.ID,
		LinkedPath:    "/lib/abc-1/original.pdf",
		ThumbnailPath: "/lib/abc-1/thumbnail.jpg",
		PageSets: []store.NewPageSet{
			{Language: "en", Title: "Paper", Filename: "paper.pdf", Files: []string{"/lib/abc-1/en/page_001.md", "/lib/abc-1/en/page_002.md"}},
			{Language: "zh", Title: "Paper", Filename: "paper.pdf", Files: []string{"/lib/abc-1/zh/page_001.md"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, doc.PageSets, 2)

	got, err := s.GetDocument(doc.ID)
	require.NoError(t, err)
	require.Len(t, got.PageSets, 2)
	assert.Equal(t, "en", got.PageSets[0].Language)
	require.Len(t, got.PageSets[0].Pages, 2)
	assert.Equal(t, 1, got.PageSets[0].Pages[1].Position)
	assert.Equal(t, "/lib/abc-1/en/page_002.md", got.PageSets[0].Pages[1].FilePath)
	assert.Len(t, got.PageSets[1].Pages, 1)

	byJob, err := s.GetDocumentByJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, byJob.ID)

	docs, err := s.ListCollectionDocuments(col.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
}

func TestCreateDocumentUnknownCollection(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	job, _ := s.CreateJob("Paper", "/uploads/paper.pdf", 42)

	_, err := s.CreateDocument(store.NewDocument{Title: "Paper", JobID: job.ID, CollectionID: 42})
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)

	_, err = s.GetDocumentByJob(job.ID)
	assert.ErrorIs(t, err, store.ErrDocumentNotFound, "nothing should be written on failure")
}

func TestCollectionLookups(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	_, err := s.GetCollection(1)
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)
	_, err = s.ListCollectionDocuments(1)
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)

	col, _ := s.CreateCollection("Empty")
	docs, err := s.ListCollectionDocuments(col.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = s.GetDocument(5)
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
}
