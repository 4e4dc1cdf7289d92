package gx

import (
	"testing"

	"github.com/docforge/docforge/internal/models"
)

func TestTranslateStatus(t *testing.T) {
	tests := []struct {
		in   string
		want models.GxStatus
		ok   bool
	}{
		{"complete", models.GxComplete, true},
		{"Completed", models.GxComplete, true},
		{"PROCESSING", models.GxProcessing, true},
		{"  queued  ", models.GxQueued, true},
		{"error", models.GxError, true},
		{"failed", models.GxError, true},
		{"cancelled", models.GxCancelled, true},
		{"canceled", models.GxCancelled, true},
		{"skipped", models.GxSkipped, true},
		{"duplicate", models.GxDuplicate, true},
		{"reading", models.GxReading, true},
		{"something-new", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := TranslateStatus(tt.in)
		if ok != tt.ok {
			t.Errorf("TranslateStatus(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("TranslateStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFirstDocumentFinalityOrder(t *testing.T) {
	complete := DocumentStatus{Name: "a", Status: "complete"}
	errored := DocumentStatus{Name: "b", Status: "error", StatusMessage: "bad"}
	processing := DocumentStatus{Name: "c", Status: "processing"}

	tests := []struct {
		name   string
		report IngestStatusReport
		want   DocumentStatus
		found  bool
	}{
		{"complete wins over processing", IngestStatusReport{Complete: []DocumentStatus{complete}, Processing: []DocumentStatus{processing}}, complete, true},
		{"errors win over processing", IngestStatusReport{Errors: []DocumentStatus{errored}, Processing: []DocumentStatus{processing}}, errored, true},
		{"processing only", IngestStatusReport{Processing: []DocumentStatus{processing}}, processing, true},
		{"empty report", IngestStatusReport{}, DocumentStatus{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := tt.report.FirstDocument()
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
