// Package gx talks to the downstream ingestion service ("GX"): bucket
// creation, ingest submission, and ingest status polling, plus the
// background loops that reconcile GxMaster rows against it.
package gx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// retryLogger adapts our logger to the retryablehttp.LeveledLogger
// interface. Info and debug are suppressed.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Msgf("%s %v", msg, keysAndValues)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Msgf("%s %v", msg, keysAndValues)
}

func (l *retryLogger) Info(string, ...interface{})  {}
func (l *retryLogger) Debug(string, ...interface{}) {}

// Client is the GX API client.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
}

// NewClient builds the GX client with retrying transport and the
// configured per-request timeout.
func NewClient(cfg *config.Config) *Client {
	logger := logging.NewLogger("gx-client", false)

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &nethttp.Client{
		Timeout: time.Duration(cfg.Gx.TimeoutSeconds) * time.Second,
	}
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 15 * time.Second
	retryClient.Logger = &retryLogger{logger: logger}

	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(cfg.Gx.BaseURL, "/"),
		apiKey:     cfg.Gx.APIKey,
		logger:     logger,
	}
}

// doRequest performs an authenticated JSON request and decodes the
// response into out (when non-nil). Non-2xx responses and transport
// errors surface as transient so consumers redeliver.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Transientf("gx request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return models.Transientf("gx %s %s returned %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return models.Transientf("failed to decode gx response: %v", err)
		}
	}
	return nil
}

// CreateBucket creates (or returns) the bucket with the given name and
// returns its id. Used to resolve per-folder buckets of bulk ZIPs.
func (c *Client) CreateBucket(ctx context.Context, name string) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.doRequest(ctx, nethttp.MethodPost, "/api/v1/buckets", map[string]string{"name": name}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// IngestRequest submits one uploaded artifact for ingestion.
type IngestRequest struct {
	BucketID     int64  `json:"bucketId"`
	FileLocation string `json:"fileLocation"`
	FileName     string `json:"fileName"`
}

// SubmitIngest hands an artifact to GX and returns the process id GX
// assigned to it.
func (c *Client) SubmitIngest(ctx context.Context, req IngestRequest) (string, error) {
	var resp struct {
		ProcessID string `json:"processId"`
	}
	if err := c.doRequest(ctx, nethttp.MethodPost, "/api/v1/ingest", req, &resp); err != nil {
		return "", err
	}
	return resp.ProcessID, nil
}

// DocumentStatus is one document inside an ingest status report.
type DocumentStatus struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage"`
}

// IngestStatusReport groups documents by progress category.
type IngestStatusReport struct {
	Complete   []DocumentStatus `json:"complete"`
	Errors     []DocumentStatus `json:"errors"`
	Cancelled  []DocumentStatus `json:"cancelled"`
	Processing []DocumentStatus `json:"processing"`
}

// FirstDocument returns the first document found walking the categories
// in finality order: complete, errors, cancelled, processing.
func (r *IngestStatusReport) FirstDocument() (DocumentStatus, bool) {
	for _, cat := range [][]DocumentStatus{r.Complete, r.Errors, r.Cancelled, r.Processing} {
		if len(cat) > 0 {
			return cat[0], true
		}
	}
	return DocumentStatus{}, false
}

// IngestStatus fetches the ingest progress report for a process id.
func (c *Client) IngestStatus(ctx context.Context, processID string) (*IngestStatusReport, error) {
	var resp IngestStatusReport
	err := c.doRequest(ctx, nethttp.MethodGet, "/api/v1/ingest/"+processID+"/status", nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// canonicalStatus maps the strings GX reports (case-insensitive) onto
// our status enum.
var canonicalStatus = map[string]models.GxStatus{
	"reading":    models.GxReading,
	"queued":     models.GxQueued,
	"processing": models.GxProcessing,
	"complete":   models.GxComplete,
	"completed":  models.GxComplete,
	"error":      models.GxError,
	"failed":     models.GxError,
	"cancelled":  models.GxCancelled,
	"canceled":   models.GxCancelled,
	"skipped":    models.GxSkipped,
	"ignored":    models.GxIgnored,
	"duplicate":  models.GxDuplicate,
	"active":     models.GxActive,
	"inactive":   models.GxInactive,
}

// TranslateStatus maps a GX-reported status string onto the canonical
// enum. Unknown strings report ok=false and the caller leaves the row
// untouched.
func TranslateStatus(s string) (models.GxStatus, bool) {
	status, ok := canonicalStatus[strings.ToLower(strings.TrimSpace(s))]
	return status, ok
}
