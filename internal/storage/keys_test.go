package storage

import "testing"

func TestSafeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "report.pdf", "report.pdf"},
		{"spaces", "my report.pdf", "my_report.pdf"},
		{"unicode", "résumé.pdf", "r_sum_.pdf"},
		{"path stripped", "folder/sub/report.pdf", "report.pdf"},
		{"windows path", "folder\\report.pdf", "report.pdf"},
		{"specials", "a&b(c).pdf", "a_b_c_.pdf"},
		{"kept chars", "A-Z_0.9.pdf", "A-Z_0.9.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeName(tt.in); got != tt.want {
				t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConstructKey(t *testing.T) {
	bucket := int64(42)

	tests := []struct {
		name   string
		bucket *int64
		kind   string
		jobID  int64
		file   string
		want   string
	}{
		{"single source", &bucket, KindSource, 1, "a.pdf", "42/source/1/a.pdf"},
		{"single files", &bucket, KindFiles, 1, "a.pdf", "42/files/1/a.pdf"},
		{"bulk source", nil, KindSource, 7, "batch.zip", "bulk/source/7/batch.zip"},
		{"bulk files", nil, KindFiles, 7, "x y.pdf", "bulk/files/7/x_y.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConstructKey(tt.bucket, tt.kind, tt.jobID, tt.file); got != tt.want {
				t.Errorf("ConstructKey = %q, want %q", got, tt.want)
			}
		})
	}

	// Determinism across runs.
	k1 := ConstructKey(&bucket, KindFiles, 9, "weird name&.pdf")
	k2 := ConstructKey(&bucket, KindFiles, 9, "weird name&.pdf")
	if k1 != k2 {
		t.Errorf("ConstructKey not deterministic: %q vs %q", k1, k2)
	}
}
