package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"data_digest/internal/domain"
)

const SourceID = "httpjson"

// Config holds source configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Source fetches a JSON array of objects with a single GET request.
type Source struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

// New creates a new HTTP JSON source.
func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		url:    cfg.URL,
		logger: logger.With("source", SourceID),
	}
}

// URL returns the endpoint the source reads from.
func (s *Source) URL() string {
	return s.url
}

// Fetch performs exactly one request. There are no retries.
func (s *Source) Fetch(ctx context.Context) (domain.Dataset, error) {
	s.logger.Info("fetching data", "url", s.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "DataDigest/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: s.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: s.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	data, err := decode(body)
	if err != nil {
		return nil, &FetchError{URL: s.url, StatusCode: resp.StatusCode, Err: err}
	}

	s.logger.Info("fetched data", "items", len(data))

	return data, nil
}

// decode accepts only a JSON array whose elements are all objects. Numbers
// are kept as json.Number so they are written back unchanged.
func decode(body []byte) (domain.Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode response: trailing data after array")
	}
	if items == nil {
		return nil, fmt.Errorf("decode response: expected array, got null")
	}

	data := make(domain.Dataset, 0, len(items))
	for i, raw := range items {
		rd := json.NewDecoder(bytes.NewReader(raw))
		rd.UseNumber()

		var rec domain.Record
		if err := rd.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode item %d: expected object: %w", i, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("decode item %d: expected object, got null", i)
		}
		data = append(data, rec)
	}

	return data, nil
}
