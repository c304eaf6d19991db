// Package pdf extracts text from PDF files using poppler's pdftotext.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// ContentType is the MIME type this extractor handles.
const ContentType = "application/pdf"

// toolName is the poppler binary invoked for extraction.
const toolName = "pdftotext"

// pageBreak separates pages in pdftotext output.
const pageBreak = "\f"

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH; " + InstallInstructions())

// pdfMagic prefixes every PDF file.
var pdfMagic = []byte("%PDF-")

// Extractor turns PDF bytes into per-page text.
type Extractor struct {
	runner driven.CommandRunner

	// checkTool is false when a runner was injected and no binary is needed.
	checkTool bool
}

// New creates an extractor that runs the pdftotext binary.
func New() *Extractor {
	return &Extractor{runner: execRunner{}, checkTool: true}
}

// NewWithRunner creates an extractor with a custom command runner.
func NewWithRunner(runner driven.CommandRunner) *Extractor {
	return &Extractor{runner: runner}
}

// CheckAvailable reports whether pdftotext can be found in PATH.
func CheckAvailable() error {
	if _, err := exec.LookPath(toolName); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions describes how to install pdftotext.
func InstallInstructions() string {
	return "install pdftotext from poppler (macOS: brew install poppler, Debian/Ubuntu: apt install poppler-utils)"
}

// Supports reports whether contentType is PDF.
func (e *Extractor) Supports(contentType string) bool {
	return contentType == ContentType
}

// Extract writes data to a temporary file and runs pdftotext over it.
// The temporary file is removed before Extract returns.
func (e *Extractor) Extract(ctx context.Context, data []byte, _ string) (*domain.Extraction, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("%w: input is not a PDF", domain.ErrExtractionFailed)
	}
	if e.checkTool {
		if err := CheckAvailable(); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
		}
	}

	path, err := writeTemp(data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	out, err := e.runner.Run(ctx, toolName, "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("%w: pdftotext failed: %w", domain.ErrExtractionFailed, err)
	}

	pages := splitPages(string(out))
	if !hasText(pages) {
		return nil, fmt.Errorf("%w: PDF has no extractable text", domain.ErrExtractionFailed)
	}

	return &domain.Extraction{
		FullText:  strings.Join(pages, pageBreak),
		Pages:     pages,
		PageCount: len(pages),
	}, nil
}

// splitPages splits pdftotext output on form feeds. pdftotext terminates
// every page with one, so the empty tail after the last is dropped.
func splitPages(out string) []string {
	pages := strings.Split(out, pageBreak)
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

func writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp("", "ephemera-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return f.Name(), nil
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
