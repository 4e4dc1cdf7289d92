package handlers

import (
	"context"
	"io"

	"github.com/docforge/docforge/internal/models"
)

// PassthroughHandler accepts formats that are forwarded as-is. It drains
// the stream and returns no items: the source object itself is the final
// artifact.
type PassthroughHandler struct{}

// NewPassthroughHandler creates the passthrough handler.
func NewPassthroughHandler() *PassthroughHandler {
	return &PassthroughHandler{}
}

// Handle drains r and reports the source as final.
func (h *PassthroughHandler) Handle(_ context.Context, r io.Reader, _ *models.FileMaster) ([]Item, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, models.Transientf("failed to read stream: %v", err)
	}
	return nil, nil
}
