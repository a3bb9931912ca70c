package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"extension lower-cased", "Deck.PPTX", "Deck.pptx"},
		{"directory stripped", "../../etc/passwd.docx", "passwd.docx"},
		{"windows path", `C:\Users\me\notes.docx`, "notes.docx"},
		{"invalid characters", `q3: "final" <v2>?.pdf`, "q3- -final- -v2.pdf"},
		{"control characters", "a\x00b\x1fc.pdf", "abc.pdf"},
		{"only dots", "...", "upload"},
		{"empty", "", "upload"},
		{"reserved name", "con.pdf", "con_.pdf"},
		{"no extension", "README", "README"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeFilename(tc.input))
		})
	}
}

func TestTitleFromFilename(t *testing.T) {
	assert.Equal(t, "Annual Report", TitleFromFilename("Annual Report.pdf"))
	assert.Equal(t, "deck", TitleFromFilename("/tmp/uploads/deck.pptx"))
	assert.Equal(t, "Untitled", TitleFromFilename(".pdf"))
	assert.Equal(t, "Untitled", TitleFromFilename(""))
}
