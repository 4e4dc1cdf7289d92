// Package config provides configuration management for the ingestion
// service.
//
// Configuration is read from an INI file (default /etc/docforge/docforge.conf,
// overridable with DOCFORGE_CONFIG) with per-key environment overrides of
// the form DOCFORGE_<SECTION>_<KEY>.
//
// INI format:
//
//	[storage]
//	bucket = docforge-artifacts
//	region = us-east-1
//	presign_ttl_minutes = 15
//
//	[queue]
//	zip_queue_url = https://sqs.../docforge-zip.fifo
//	file_queue_url = https://sqs.../docforge-file.fifo
//
//	[database]
//	url = postgres://docforge@localhost:5432/docforge
//
//	[gx]
//	base_url = https://gx.internal
//	api_key =
//	timeout_seconds = 30
//
//	[zip]
//	concurrency_limit = 8
//	temp_dir =
//
//	[scheduler]
//	fetch_doc_status_cron = */30 * * * * *
//	job_completion_cron = */20 * * * * *
//	stale_job_cron = 0 */10 * * * *
//	stale_job_hours = 24
//
//	[subprocess]
//	libreoffice_path = soffice
//	ghostscript_path = gs
//	msgconvert_path = msgconvert
//	handler_timeout_seconds = 120
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Validation errors.
var (
	ErrMissingBucket      = errors.New("storage.bucket is required")
	ErrMissingQueueURL    = errors.New("queue.zip_queue_url and queue.file_queue_url are required")
	ErrMissingDatabaseURL = errors.New("database.url is required")
	ErrInvalidConcurrency = errors.New("zip.concurrency_limit must be between 1 and 64")
)

// StorageConfig configures the S3 adapter.
type StorageConfig struct {
	Bucket            string `ini:"bucket"`
	Region            string `ini:"region"`
	Endpoint          string `ini:"endpoint"` // optional, for S3-compatible stores
	AccessKeyID       string `ini:"access_key_id"`
	SecretAccessKey   string `ini:"secret_access_key"`
	PresignTTLMinutes int    `ini:"presign_ttl_minutes"`
}

// QueueConfig configures the FIFO queues.
type QueueConfig struct {
	ZipQueueURL  string `ini:"zip_queue_url"`
	FileQueueURL string `ini:"file_queue_url"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	URL      string `ini:"url"`
	MaxConns int32  `ini:"max_conns"`
}

// GxConfig configures the downstream ingestion API client.
type GxConfig struct {
	BaseURL        string `ini:"base_url"`
	APIKey         string `ini:"api_key"`
	TimeoutSeconds int    `ini:"timeout_seconds"`
}

// ZipConfig configures ZIP extraction.
type ZipConfig struct {
	ConcurrencyLimit int    `ini:"concurrency_limit"`
	TempDir          string `ini:"temp_dir"` // empty means the OS default
}

// SchedulerConfig holds the cron expressions for the background loops.
// Expressions use the six-field (seconds-resolution) cron syntax.
type SchedulerConfig struct {
	FetchDocStatusCron string `ini:"fetch_doc_status_cron"`
	JobCompletionCron  string `ini:"job_completion_cron"`
	StaleJobCron       string `ini:"stale_job_cron"`
	StaleJobHours      int    `ini:"stale_job_hours"`
}

// SubprocessConfig configures the external conversion tools.
type SubprocessConfig struct {
	LibreOfficePath       string `ini:"libreoffice_path"`
	GhostscriptPath       string `ini:"ghostscript_path"`
	MsgconvertPath        string `ini:"msgconvert_path"`
	HandlerTimeoutSeconds int    `ini:"handler_timeout_seconds"`
}

// ValidationConfig configures file admissibility.
type ValidationConfig struct {
	// SupportedExtensions is a comma-separated list; lower-case, no dots.
	SupportedExtensions string `ini:"supported_extensions"`
}

// Config is the complete service configuration.
type Config struct {
	Storage    StorageConfig
	Queue      QueueConfig
	Database   DatabaseConfig
	Gx         GxConfig
	Zip        ZipConfig
	Scheduler  SchedulerConfig
	Subprocess SubprocessConfig
	Validation ValidationConfig
}

// DefaultSupportedExtensions is the out-of-the-box admissible set.
const DefaultSupportedExtensions = "pdf,docx,xlsx,pptx,doc,xls,ppt,msg,txt,rtf,html,htm,csv,png,jpg,jpeg,tiff"

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Storage: StorageConfig{
			Region:            "us-east-1",
			PresignTTLMinutes: 15,
		},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Gx: GxConfig{
			TimeoutSeconds: 30,
		},
		Zip: ZipConfig{
			ConcurrencyLimit: 8,
		},
		Scheduler: SchedulerConfig{
			FetchDocStatusCron: "*/30 * * * * *",
			JobCompletionCron:  "*/20 * * * * *",
			StaleJobCron:       "0 */10 * * * *",
			StaleJobHours:      24,
		},
		Subprocess: SubprocessConfig{
			LibreOfficePath:       "soffice",
			GhostscriptPath:       "gs",
			MsgconvertPath:        "msgconvert",
			HandlerTimeoutSeconds: 120,
		},
		Validation: ValidationConfig{
			SupportedExtensions: DefaultSupportedExtensions,
		},
	}
}

// Load reads the configuration file at path (or the DOCFORGE_CONFIG /
// default location when path is empty), applies environment overrides,
// and validates the result. A missing file is not an error; defaults and
// environment variables still apply.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = os.Getenv("DOCFORGE_CONFIG")
	}
	if path == "" {
		path = "/etc/docforge/docforge.conf"
	}

	if _, err := os.Stat(path); err == nil {
		iniFile, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		if err := iniFile.Section("storage").MapTo(&cfg.Storage); err != nil {
			return nil, fmt.Errorf("invalid [storage] section: %w", err)
		}
		if err := iniFile.Section("queue").MapTo(&cfg.Queue); err != nil {
			return nil, fmt.Errorf("invalid [queue] section: %w", err)
		}
		if err := iniFile.Section("database").MapTo(&cfg.Database); err != nil {
			return nil, fmt.Errorf("invalid [database] section: %w", err)
		}
		if err := iniFile.Section("gx").MapTo(&cfg.Gx); err != nil {
			return nil, fmt.Errorf("invalid [gx] section: %w", err)
		}
		if err := iniFile.Section("zip").MapTo(&cfg.Zip); err != nil {
			return nil, fmt.Errorf("invalid [zip] section: %w", err)
		}
		if err := iniFile.Section("scheduler").MapTo(&cfg.Scheduler); err != nil {
			return nil, fmt.Errorf("invalid [scheduler] section: %w", err)
		}
		if err := iniFile.Section("subprocess").MapTo(&cfg.Subprocess); err != nil {
			return nil, fmt.Errorf("invalid [subprocess] section: %w", err)
		}
		if err := iniFile.Section("validation").MapTo(&cfg.Validation); err != nil {
			return nil, fmt.Errorf("invalid [validation] section: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies DOCFORGE_<SECTION>_<KEY> environment
// variables on top of file values.
func (c *Config) applyEnvOverrides() {
	envStr("DOCFORGE_STORAGE_BUCKET", &c.Storage.Bucket)
	envStr("DOCFORGE_STORAGE_REGION", &c.Storage.Region)
	envStr("DOCFORGE_STORAGE_ENDPOINT", &c.Storage.Endpoint)
	envStr("DOCFORGE_STORAGE_ACCESS_KEY_ID", &c.Storage.AccessKeyID)
	envStr("DOCFORGE_STORAGE_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey)
	envInt("DOCFORGE_STORAGE_PRESIGN_TTL_MINUTES", &c.Storage.PresignTTLMinutes)
	envStr("DOCFORGE_QUEUE_ZIP_QUEUE_URL", &c.Queue.ZipQueueURL)
	envStr("DOCFORGE_QUEUE_FILE_QUEUE_URL", &c.Queue.FileQueueURL)
	envStr("DOCFORGE_DATABASE_URL", &c.Database.URL)
	envStr("DOCFORGE_GX_BASE_URL", &c.Gx.BaseURL)
	envStr("DOCFORGE_GX_API_KEY", &c.Gx.APIKey)
	envInt("DOCFORGE_GX_TIMEOUT_SECONDS", &c.Gx.TimeoutSeconds)
	envInt("DOCFORGE_ZIP_CONCURRENCY_LIMIT", &c.Zip.ConcurrencyLimit)
	envStr("DOCFORGE_ZIP_TEMP_DIR", &c.Zip.TempDir)
	envInt("DOCFORGE_SCHEDULER_STALE_JOB_HOURS", &c.Scheduler.StaleJobHours)
	envStr("DOCFORGE_SUBPROCESS_LIBREOFFICE_PATH", &c.Subprocess.LibreOfficePath)
	envStr("DOCFORGE_SUBPROCESS_GHOSTSCRIPT_PATH", &c.Subprocess.GhostscriptPath)
	envStr("DOCFORGE_SUBPROCESS_MSGCONVERT_PATH", &c.Subprocess.MsgconvertPath)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" {
		return ErrMissingBucket
	}
	if c.Queue.ZipQueueURL == "" || c.Queue.FileQueueURL == "" {
		return ErrMissingQueueURL
	}
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Zip.ConcurrencyLimit < 1 || c.Zip.ConcurrencyLimit > 64 {
		return ErrInvalidConcurrency
	}
	return nil
}

// SupportedExtensionSet returns the configured extension set, normalized
// to lower case without dots.
func (c *Config) SupportedExtensionSet() map[string]bool {
	set := make(map[string]bool)
	for _, ext := range strings.Split(c.Validation.SupportedExtensions, ",") {
		ext = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
		if ext != "" {
			set[ext] = true
		}
	}
	return set
}
