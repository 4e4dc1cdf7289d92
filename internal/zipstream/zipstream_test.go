package zipstream

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"testing"
)

// buildZip creates an in-memory archive from name → content pairs.
// A nil content creates a directory entry.
func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		if content == nil {
			if _, err := w.Create(name + "/"); err != nil {
				t.Fatal(err)
			}
			continue
		}
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func collect(t *testing.T, archive []byte) map[string]Entry {
	t.Helper()
	p := New(t.TempDir())
	got := make(map[string]Entry)
	err := p.Process(context.Background(), bytes.NewReader(archive), func(_ context.Context, e Entry) error {
		got[e.Path] = e
		// The receiver owns the temp file.
		os.Remove(e.TempFile)
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return got
}

func TestProcessBasic(t *testing.T) {
	content := []byte("hello world")
	archive := buildZip(t, map[string][]byte{
		"docs/report.pdf": content,
	})

	got := collect(t, archive)
	e, ok := got["docs/report.pdf"]
	if !ok {
		t.Fatalf("entry missing, got %v", got)
	}
	if e.Size != int64(len(content)) {
		t.Errorf("size = %d, want %d", e.Size, len(content))
	}
	sum := sha256.Sum256(content)
	if e.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("hash mismatch: %s", e.SHA256)
	}
}

func TestProcessSkipsJunk(t *testing.T) {
	archive := buildZip(t, map[string][]byte{
		"docs/report.pdf":        []byte("keep"),
		"docs/._report.pdf":      []byte("appledouble"),
		"__MACOSX/x/report.pdf":  []byte("resource fork"),
		"docs/.DS_Store":         []byte("finder"),
		"docs/Thumbs.db":         []byte("explorer"),
		"docs/empty.pdf":         {},
		"docs/sub":               nil, // directory
		"back\\slash\\paper.pdf": []byte("windows"),
	})

	got := collect(t, archive)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(got), got)
	}
	if _, ok := got["docs/report.pdf"]; !ok {
		t.Error("docs/report.pdf missing")
	}
	if _, ok := got["back/slash/paper.pdf"]; !ok {
		t.Error("backslash path not normalized")
	}
}

func TestProcessNestedZip(t *testing.T) {
	inner := buildZip(t, map[string][]byte{
		"bucketA/inner.pdf": []byte("inner content"),
	})
	outer := buildZip(t, map[string][]byte{
		"outer/wrapper.zip": inner,
		"outer/top.pdf":     []byte("top content"),
	})

	got := collect(t, outer)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(got), got)
	}
	// Nested entries keep their innermost path.
	if _, ok := got["bucketA/inner.pdf"]; !ok {
		t.Error("nested entry should be resolved against its innermost path")
	}
	if _, ok := got["outer/top.pdf"]; !ok {
		t.Error("outer entry missing")
	}
}

func TestProcessBadArchive(t *testing.T) {
	p := New(t.TempDir())
	err := p.Process(context.Background(), bytes.NewReader([]byte("not a zip")), func(context.Context, Entry) error {
		t.Fatal("emit should not be called")
		return nil
	})
	if !errors.Is(err, ErrBadArchive) {
		t.Errorf("expected ErrBadArchive, got %v", err)
	}
}

func TestProcessEmitError(t *testing.T) {
	archive := buildZip(t, map[string][]byte{"a.pdf": []byte("x"), "b.pdf": []byte("y")})
	p := New(t.TempDir())
	boom := errors.New("boom")
	err := p.Process(context.Background(), bytes.NewReader(archive), func(context.Context, Entry) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("emit error should propagate, got %v", err)
	}
}
