package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docforge.conf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
[storage]
bucket = test-bucket

[queue]
zip_queue_url = https://sqs/zip.fifo
file_queue_url = https://sqs/file.fifo

[database]
url = postgres://localhost/docforge
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.Bucket != "test-bucket" {
		t.Errorf("bucket = %q", cfg.Storage.Bucket)
	}
	if cfg.Storage.Region != "us-east-1" {
		t.Errorf("region default = %q", cfg.Storage.Region)
	}
	if cfg.Zip.ConcurrencyLimit != 8 {
		t.Errorf("concurrency default = %d", cfg.Zip.ConcurrencyLimit)
	}
	if cfg.Scheduler.StaleJobHours != 24 {
		t.Errorf("stale hours default = %d", cfg.Scheduler.StaleJobHours)
	}
	if cfg.Subprocess.GhostscriptPath != "gs" {
		t.Errorf("ghostscript default = %q", cfg.Subprocess.GhostscriptPath)
	}
	if !cfg.SupportedExtensionSet()["pdf"] {
		t.Error("default extension set must include pdf")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
[zip]
concurrency_limit = 4
temp_dir = /var/tmp/docforge

[scheduler]
stale_job_hours = 6

[validation]
supported_extensions = pdf,txt
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Zip.ConcurrencyLimit != 4 {
		t.Errorf("concurrency = %d", cfg.Zip.ConcurrencyLimit)
	}
	if cfg.Zip.TempDir != "/var/tmp/docforge" {
		t.Errorf("temp dir = %q", cfg.Zip.TempDir)
	}
	if cfg.Scheduler.StaleJobHours != 6 {
		t.Errorf("stale hours = %d", cfg.Scheduler.StaleJobHours)
	}
	set := cfg.SupportedExtensionSet()
	if !set["pdf"] || !set["txt"] || set["docx"] {
		t.Errorf("extension set = %v", set)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("DOCFORGE_STORAGE_BUCKET", "env-bucket")
	t.Setenv("DOCFORGE_ZIP_CONCURRENCY_LIMIT", "2")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Bucket != "env-bucket" {
		t.Errorf("bucket = %q, want env override", cfg.Storage.Bucket)
	}
	if cfg.Zip.ConcurrencyLimit != 2 {
		t.Errorf("concurrency = %d, want env override", cfg.Zip.ConcurrencyLimit)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("DOCFORGE_STORAGE_BUCKET", "env-only")
	t.Setenv("DOCFORGE_QUEUE_ZIP_QUEUE_URL", "https://sqs/z.fifo")
	t.Setenv("DOCFORGE_QUEUE_FILE_QUEUE_URL", "https://sqs/f.fifo")
	t.Setenv("DOCFORGE_DATABASE_URL", "postgres://localhost/d")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Bucket != "env-only" {
		t.Errorf("bucket = %q", cfg.Storage.Bucket)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing bucket", func(c *Config) { c.Storage.Bucket = "" }, ErrMissingBucket},
		{"missing queue", func(c *Config) { c.Queue.FileQueueURL = "" }, ErrMissingQueueURL},
		{"missing database", func(c *Config) { c.Database.URL = "" }, ErrMissingDatabaseURL},
		{"zero concurrency", func(c *Config) { c.Zip.ConcurrencyLimit = 0 }, ErrInvalidConcurrency},
		{"excessive concurrency", func(c *Config) { c.Zip.ConcurrencyLimit = 100 }, ErrInvalidConcurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Storage.Bucket = "b"
			cfg.Queue.ZipQueueURL = "z"
			cfg.Queue.FileQueueURL = "f"
			cfg.Database.URL = "d"
			tt.mutate(cfg)
			if err := cfg.Validate(); err != tt.want {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
