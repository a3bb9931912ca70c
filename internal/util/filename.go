package util

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	invalidChars   = regexp.MustCompile(`[\\/:*?"<>|]`)
	repeatedDashes = regexp.MustCompile(`-+`)
)

// reservedNames are device names Windows refuses as file names.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFilename makes an uploaded file name safe to store. Any directory
// part is dropped and the extension is kept lower-cased. An empty result
// becomes "upload".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" {
		name = ""
	}

	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if ext == "." || invalidChars.MatchString(ext) || controlChars.MatchString(ext) {
		stem, ext = name, ""
	}

	stem = controlChars.ReplaceAllString(stem, "")
	stem = invalidChars.ReplaceAllString(stem, "-")
	stem = strings.Trim(stem, " .")
	stem = repeatedDashes.ReplaceAllString(stem, "-")
	stem = strings.Trim(stem, "-")

	if stem == "" {
		stem = "upload"
	}
	if reservedNames[strings.ToUpper(stem)] {
		stem += "_"
	}
	return stem + ext
}

// TitleFromFilename derives a display title from a file name.
func TitleFromFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" || title == "." || title == "/" {
		return "Untitled"
	}
	return title
}
