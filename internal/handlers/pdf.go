package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/models"
)

// maxPagesPerArtifact is the split threshold: PDFs with more pages are
// cut into chunks of this size, each becoming its own final artifact.
const maxPagesPerArtifact = 500

// PDFHandler finalizes PDF files. Small documents pass through
// unchanged (no items); oversized documents are split into page-range
// chunks with Ghostscript, one item per chunk.
type PDFHandler struct {
	gsPath  string
	tempDir string
	timeout time.Duration
}

// NewPDFHandler creates the PDF handler from configuration.
func NewPDFHandler(cfg *config.Config) *PDFHandler {
	return &PDFHandler{
		gsPath:  cfg.Subprocess.GhostscriptPath,
		tempDir: cfg.Zip.TempDir,
		timeout: time.Duration(cfg.Subprocess.HandlerTimeoutSeconds) * time.Second,
	}
}

// Handle counts pages and splits when the document exceeds the
// per-artifact page limit.
func (h *PDFHandler) Handle(ctx context.Context, r io.Reader, file *models.FileMaster) ([]Item, error) {
	src, err := spoolToTemp(h.tempDir, "docforge-pdf-*.pdf", r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(src)

	pages, err := h.countPages(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages of %s: %w", file.FileName, err)
	}
	if pages <= maxPagesPerArtifact {
		return nil, nil // source is the final artifact
	}

	stem := strings.TrimSuffix(file.FileName, filepath.Ext(file.FileName))
	var items []Item
	for part, first := 1, 1; first <= pages; part, first = part+1, first+maxPagesPerArtifact {
		last := first + maxPagesPerArtifact - 1
		if last > pages {
			last = pages
		}
		content, err := h.extractRange(ctx, src, first, last)
		if err != nil {
			return nil, fmt.Errorf("failed to split pages %d-%d of %s: %w", first, last, file.FileName, err)
		}
		items = append(items, Item{
			Filename: fmt.Sprintf("%s_part%d.pdf", stem, part),
			Content:  content,
		})
	}
	return items, nil
}

func (h *PDFHandler) countPages(ctx context.Context, path string) (int, error) {
	script := fmt.Sprintf("(%s) (r) file runpdfbegin pdfpagecount = quit", path)
	out, err := runCommand(ctx, h.timeout, h.gsPath,
		"-q", "-dNODISPLAY", "-dNOSAFER", "-c", script)
	if err != nil {
		return 0, err
	}
	pages, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected page count output %q: %w", out, err)
	}
	return pages, nil
}

func (h *PDFHandler) extractRange(ctx context.Context, path string, first, last int) ([]byte, error) {
	out, err := os.CreateTemp(h.tempDir, "docforge-split-*.pdf")
	if err != nil {
		return nil, models.Transientf("temp file for split failed: %v", err)
	}
	out.Close()
	defer os.Remove(out.Name())

	_, err = runCommand(ctx, h.timeout, h.gsPath,
		"-q", "-dNOPAUSE", "-dBATCH", "-sDEVICE=pdfwrite",
		fmt.Sprintf("-dFirstPage=%d", first),
		fmt.Sprintf("-dLastPage=%d", last),
		"-sOutputFile="+out.Name(),
		path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(out.Name())
}

// spoolToTemp writes r to a new temp file and returns its path.
func spoolToTemp(dir, pattern string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", models.Transientf("temp spool failed: %v", err)
	}
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", models.Transientf("spooling stream failed: %v", err)
	}
	return tmp.Name(), nil
}
