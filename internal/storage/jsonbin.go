package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// JSONBinOptions parameterise the jsonbin.io client.
type JSONBinOptions struct {
	BaseURL string
	BinID   string
	APIKey  string
	Timeout time.Duration
}

// JSONBin keeps the document in a jsonbin.io bin identified by a fixed id.
type JSONBin struct {
	opts    JSONBinOptions
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewJSONBin constructs the remote blob client.
func NewJSONBin(opts JSONBinOptions, logger zerolog.Logger) *JSONBin {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.jsonbin.io/v3"
	}
	return &JSONBin{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "jsonbin").Logger(),
	}
}

// Load fetches the latest version of the bin.
func (j *JSONBin) Load(ctx context.Context) ([]byte, error) {
	if j.opts.BinID == "" {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.binURL()+"/latest", nil)
	if err != nil {
		return nil, fmt.Errorf("create jsonbin request: %w", err)
	}
	j.setHeaders(req)
	req.Header.Set("X-Bin-Meta", "false")

	payload, status, err := j.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("jsonbin load: status %d: %s", status, strings.TrimSpace(string(payload)))
	}

	return unwrapRecord(payload), nil
}

// Save replaces the bin contents.
func (j *JSONBin) Save(ctx context.Context, body []byte) error {
	if j.opts.BinID == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, j.binURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create jsonbin request: %w", err)
	}
	j.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	payload, status, err := j.do(req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("jsonbin save: status %d: %s", status, strings.TrimSpace(string(payload)))
	}

	j.logger.Debug().Int("bytes", len(body)).Msg("state mirrored to jsonbin")
	return nil
}

func (j *JSONBin) binURL() string {
	return fmt.Sprintf("%s/b/%s", j.baseURL, j.opts.BinID)
}

func (j *JSONBin) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if j.opts.APIKey != "" {
		req.Header.Set("X-Master-Key", j.opts.APIKey)
	}
}

func (j *JSONBin) do(req *http.Request) ([]byte, int, error) {
	resp, err := j.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("jsonbin request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read jsonbin response: %w", err)
	}
	return payload, resp.StatusCode, nil
}

// unwrapRecord strips the {"record": ..., "metadata": ...} envelope that
// jsonbin returns when bin metadata is not suppressed.
func unwrapRecord(payload []byte) []byte {
	var envelope struct {
		Record   json.RawMessage `json:"record"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope.Record) > 0 && len(envelope.Metadata) > 0 {
		return envelope.Record
	}
	return payload
}

var _ BlobStore = (*JSONBin)(nil)
