// Package document turns uploaded office and PDF files into page images.
package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Converter turns an office document into a PDF inside outDir.
type Converter interface {
	ToPDF(ctx context.Context, src, outDir string) (string, error)
}

// commandRunner runs an external program and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// SofficeConverter shells out to LibreOffice in headless mode.
type SofficeConverter struct {
	Binary  string
	Timeout time.Duration
	run     commandRunner
}

func NewSofficeConverter(binary string, timeout time.Duration) *SofficeConverter {
	if binary == "" {
		binary = "soffice"
	}
	return &SofficeConverter{Binary: binary, Timeout: timeout, run: execRunner}
}

func (c *SofficeConverter) ToPDF(ctx context.Context, src, outDir string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create conversion dir: %w", err)
	}

	args := []string{"--headless", "--convert-to", "pdf", "--outdir", outDir, src}
	log.Debug().Str("binary", c.Binary).Strs("args", args).Msg("converting document to pdf")
	out, err := c.run(ctx, c.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w: %s", c.Binary, err, strings.TrimSpace(string(out)))
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	pdfPath := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(pdfPath); err != nil {
		return "", fmt.Errorf("converter produced no pdf for %s: %w", filepath.Base(src), err)
	}
	return pdfPath, nil
}
