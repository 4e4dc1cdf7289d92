package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/models"
)

// OfficeHandler converts office documents to PDF with LibreOffice in
// headless mode. The output keeps the source stem so the pipeline
// treats it as a transformation of the same file.
type OfficeHandler struct {
	sofficePath string
	tempDir     string
	timeout     time.Duration
}

// NewOfficeHandler creates the office handler from configuration.
func NewOfficeHandler(cfg *config.Config) *OfficeHandler {
	return &OfficeHandler{
		sofficePath: cfg.Subprocess.LibreOfficePath,
		tempDir:     cfg.Zip.TempDir,
		timeout:     time.Duration(cfg.Subprocess.HandlerTimeoutSeconds) * time.Second,
	}
}

// Handle converts the document and returns one item: "{stem}.pdf".
func (h *OfficeHandler) Handle(ctx context.Context, r io.Reader, file *models.FileMaster) ([]Item, error) {
	// soffice derives the output name from the input name, so the spool
	// lives in its own directory under the original file name.
	workDir, err := os.MkdirTemp(h.tempDir, "docforge-office-*")
	if err != nil {
		return nil, models.Transientf("temp dir for conversion failed: %v", err)
	}
	defer os.RemoveAll(workDir)

	src := filepath.Join(workDir, filepath.Base(file.FileName))
	if err := writeStream(src, r); err != nil {
		return nil, err
	}

	// A shared profile dir makes concurrent soffice runs trample each
	// other, so every invocation gets its own.
	profile := filepath.Join(workDir, "profile")
	_, err = runCommand(ctx, h.timeout, h.sofficePath,
		"--headless", "--norestore",
		"-env:UserInstallation=file://"+profile,
		"--convert-to", "pdf",
		"--outdir", workDir,
		src)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s to pdf: %w", file.FileName, err)
	}

	stem := strings.TrimSuffix(filepath.Base(file.FileName), filepath.Ext(file.FileName))
	outName := stem + ".pdf"
	content, err := os.ReadFile(filepath.Join(workDir, outName))
	if err != nil {
		return nil, fmt.Errorf("conversion of %s produced no output: %w", file.FileName, err)
	}
	return []Item{{Filename: outName, Content: content}}, nil
}

// writeStream copies r into a new file at path.
func writeStream(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return models.Transientf("temp spool failed: %v", err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return models.Transientf("spooling stream failed: %v", err)
	}
	return nil
}
