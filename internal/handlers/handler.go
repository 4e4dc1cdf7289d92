// Package handlers contains the pluggable per-format file handlers used
// by the document pipeline.
//
// Outcome semantics, interpreted by the pipeline:
//   - empty item list: the source file is itself the final artifact
//   - one item named exactly like the source: transformed in place
//   - anything else: PDF sources yield one final artifact per item (page
//     split); container sources yield new child files that re-enter the
//     pipeline
package handlers

import (
	"context"
	"io"
	"strings"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/models"
)

// Item is one output of a handler: a filename and its bytes.
type Item struct {
	Filename string
	Content  []byte
}

// FileHandler processes one file stream.
type FileHandler interface {
	// Handle consumes the file content and returns output items. The
	// reader is positioned at the start of the file bytes.
	Handle(ctx context.Context, r io.Reader, file *models.FileMaster) ([]Item, error)
}

// Registry maps extensions (lower case, no dot) to handlers.
type Registry struct {
	handlers map[string]FileHandler
}

// NewRegistry builds the default handler set from configuration.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{handlers: make(map[string]FileHandler)}

	pdf := NewPDFHandler(cfg)
	office := NewOfficeHandler(cfg)
	msg := NewMsgHandler(cfg)
	passthrough := NewPassthroughHandler()

	r.Register(pdf, "pdf")
	r.Register(office, "doc", "docx", "xls", "xlsx", "ppt", "pptx", "rtf")
	r.Register(msg, "msg")
	r.Register(passthrough, "txt", "html", "htm", "csv", "png", "jpg", "jpeg", "tiff")

	return r
}

// Register binds handler to the given extensions.
func (r *Registry) Register(h FileHandler, extensions ...string) {
	for _, ext := range extensions {
		r.handlers[strings.ToLower(ext)] = h
	}
}

// Lookup returns the handler for extension, or nil when the format has
// no handler (the pipeline marks such files IGNORED).
func (r *Registry) Lookup(extension string) FileHandler {
	return r.handlers[strings.ToLower(strings.TrimPrefix(extension, "."))]
}
