// Package zipstream extracts ZIP archives entry by entry: each entry is
// streamed to a temp file while a SHA-256 digest is computed inline, and
// nested archives recurse into the same procedure. Whole-archive
// buffering never happens; memory use is bounded by the copy buffer.
package zipstream

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/docforge/docforge/internal/logging"
)

// ErrBadArchive marks a structurally invalid ZIP. Terminal: redelivering
// the message cannot fix the bytes.
var ErrBadArchive = errors.New("invalid zip archive")

// Entry is one extracted file. The receiver of an Entry owns TempFile
// and must remove it.
type Entry struct {
	Path     string // normalized archive path, relative to its innermost archive
	TempFile string
	SHA256   string // hex digest of the entry bytes
	Size     int64
}

// EmitFunc receives each extracted entry. Returning an error aborts the
// walk; per-entry failure isolation is the caller's concern.
type EmitFunc func(ctx context.Context, e Entry) error

// Processor walks ZIP streams.
type Processor struct {
	tempDir string
	logger  *logging.Logger
}

// New creates a Processor writing temp files under tempDir (empty means
// the OS default).
func New(tempDir string) *Processor {
	return &Processor{
		tempDir: tempDir,
		logger:  logging.NewLogger("zipstream", false),
	}
}

// Junk names skipped during extraction.
var junkNames = map[string]bool{
	"__MACOSX":  true,
	".DS_Store": true,
	"Thumbs.db": true,
}

// Process spools r to a temp file (the ZIP directory lives at the end of
// the stream, so random access is required) and walks every entry,
// recursing into nested .zip entries. The spool is always removed.
func (p *Processor) Process(ctx context.Context, r io.Reader, emit EmitFunc) error {
	spool, err := os.CreateTemp(p.tempDir, "docforge-zip-*")
	if err != nil {
		return fmt.Errorf("failed to create zip spool: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	size, err := io.Copy(spool, r)
	if err != nil {
		return fmt.Errorf("failed to spool zip stream: %w", err)
	}
	return p.processFile(ctx, spool, size, emit)
}

// ProcessFile walks an already-materialized archive file.
func (p *Processor) ProcessFile(ctx context.Context, path string, emit EmitFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}
	return p.processFile(ctx, f, info.Size(), emit)
}

func (p *Processor) processFile(ctx context.Context, f *os.File, size int64, emit EmitFunc) error {
	zr, err := zip.NewReader(f, size)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := normalizePath(zf.Name)
		if skipEntry(zf, name) {
			continue
		}
		if err := p.handleEntry(ctx, zf, name, emit); err != nil {
			return err
		}
	}
	return nil
}

// handleEntry extracts one entry to a temp file with an inline digest,
// then either recurses (nested zip) or emits it.
func (p *Processor) handleEntry(ctx context.Context, zf *zip.File, name string, emit EmitFunc) error {
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%w: entry %s: %v", ErrBadArchive, name, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(p.tempDir, "docforge-entry-*")
	if err != nil {
		return fmt.Errorf("failed to create entry temp file: %w", err)
	}

	hasher := sha256.New()
	written, err := io.Copy(tmp, io.TeeReader(rc, hasher))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to extract entry %s: %w", name, err)
	}

	// Zero-byte entries are not emitted.
	if written == 0 {
		os.Remove(tmp.Name())
		return nil
	}

	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		// The nested archive itself is never emitted; its children are
		// resolved against their own (innermost) paths.
		nestedErr := p.ProcessFile(ctx, tmp.Name(), emit)
		os.Remove(tmp.Name())
		return nestedErr
	}

	entry := Entry{
		Path:     name,
		TempFile: tmp.Name(),
		SHA256:   hex.EncodeToString(hasher.Sum(nil)),
		Size:     written,
	}
	if err := emit(ctx, entry); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// normalizePath converts backslashes to slashes and strips any leading
// slash.
func normalizePath(name string) string {
	return strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")
}

// skipEntry applies the junk rules: directories, AppleDouble files,
// macOS/Windows metadata, and anything under a junk root directory.
func skipEntry(zf *zip.File, name string) bool {
	if zf.FileInfo().IsDir() || strings.HasSuffix(name, "/") || name == "" {
		return true
	}
	base := path.Base(name)
	if strings.HasPrefix(base, "._") || junkNames[base] {
		return true
	}
	if root := rootSegment(name); junkNames[root] {
		return true
	}
	return false
}

func rootSegment(name string) string {
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return name
}
