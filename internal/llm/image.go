package llm

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"
	"strings"
)

// Encoding tells how an Image carries its bytes.
type Encoding int

const (
	// EncodingInline means Data holds base64, optionally as a data URI.
	EncodingInline Encoding = iota
	// EncodingFile means Path names an image file on disk.
	EncodingFile
)

// Image is the vision input of ChatWithImage.
type Image struct {
	Encoding Encoding
	Data     string
	Path     string
}

// InlineImage wraps base64 or data-URI image data.
func InlineImage(data string) Image { return Image{Encoding: EncodingInline, Data: data} }

// FileImage references an image on disk.
func FileImage(path string) Image { return Image{Encoding: EncodingFile, Path: path} }

// accepted maps image.DecodeConfig format names to MIME types.
var accepted = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
}

func acceptedMIME(mime string) bool {
	for _, m := range accepted {
		if m == mime {
			return true
		}
	}
	return false
}

// Resolve returns the validated image bytes and their MIME type.
func (img Image) Resolve() ([]byte, string, error) {
	switch img.Encoding {
	case EncodingInline:
		return NormalizeInline(img.Data)
	case EncodingFile:
		return LoadFile(img.Path)
	}
	return nil, "", fmt.Errorf("unknown image encoding %d", img.Encoding)
}

// NormalizeInline decodes base64 image data. A "data:<mime>;base64," prefix is
// stripped after checking the MIME type, missing padding is restored, and the
// decoded bytes must be a JPEG, PNG or GIF.
func NormalizeInline(data string) ([]byte, string, error) {
	payload := strings.TrimSpace(data)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("malformed data URI: missing comma")
		}
		header := payload[len("data:"):comma]
		mime, _, _ := strings.Cut(header, ";")
		if !acceptedMIME(strings.ToLower(mime)) {
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("malformed data URI: not base64 encoded")
		}
		payload = payload[comma+1:]
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, "", ErrEmptyImage
	}
	if rem := len(payload) % 4; rem != 0 {
		payload += strings.Repeat("=", 4-rem)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 image data: %w", err)
	}
	mime, err := detect(raw)
	if err != nil {
		return nil, "", err
	}
	return raw, mime, nil
}

// LoadFile reads an image from disk and validates it like NormalizeInline.
func LoadFile(path string) ([]byte, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read image file: %w", err)
	}
	mime, err := detect(raw)
	if err != nil {
		return nil, "", err
	}
	return raw, mime, nil
}

func detect(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", ErrEmptyImage
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	mime, ok := accepted[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return mime, nil
}

// DataURI renders bytes as a base64 data URI.
func DataURI(mime string, raw []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
}
