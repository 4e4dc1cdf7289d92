package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/docforge/docforge/internal/models"
)

func TestPresignPartRejectsOutOfRangePartNumbers(t *testing.T) {
	// The bounds check fires before any S3 call, so a zero-value
	// client is enough to exercise it.
	c := &Client{}

	tests := []struct {
		name       string
		partNumber int32
	}{
		{"zero", 0},
		{"negative", -1},
		{"above max", MaxPartNumber + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.PresignPart(context.Background(), "7/source/1/big.zip", "upload-1", tt.partNumber)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("PresignPart(%d) error = %v, want ErrValidation", tt.partNumber, err)
			}
		})
	}
}
