package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
)

// ErrNotOfficeContainer is returned when a .docx/.pptx is not a zip package.
var ErrNotOfficeContainer = errors.New("file is not an office open xml package")

// RequireOfficeContainer checks that an OOXML file is actually a zip
// container before it is handed to the converter.
func RequireOfficeContainer(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(path), f)
	if errors.Is(err, archives.NoMatch) {
		return fmt.Errorf("%w: %s", ErrNotOfficeContainer, filepath.Base(path))
	}
	if err != nil {
		return fmt.Errorf("identify %s: %w", filepath.Base(path), err)
	}
	if format.Extension() != ".zip" {
		return fmt.Errorf("%w: detected %s", ErrNotOfficeContainer, format.Extension())
	}
	return nil
}
