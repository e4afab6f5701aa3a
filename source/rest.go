// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/poiesic/intake/core"
)

// restSource pulls records from an HTTP endpoint returning JSON. The
// endpoint may return a bare array, or an object with the records under
// "items", "data", "results" or "records".
type restSource struct {
	cfg       core.SourceConfig
	endpoint  string
	authToken string
	client    *http.Client
	connected bool
	page      int
}

func newRESTSource(cfg core.SourceConfig) (*restSource, error) {
	endpoint := cfg.ConnectionParams["url"]
	if endpoint == "" {
		return nil, fmt.Errorf("%w: url", ErrMissingParam)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", endpoint, err)
	}

	timeout := 30 * time.Second
	if raw := cfg.ConnectionParams["timeout_seconds"]; raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid timeout_seconds %q", raw)
		}
		timeout = time.Duration(seconds) * time.Second
	}

	return &restSource{
		cfg:       cfg,
		endpoint:  endpoint,
		authToken: cfg.ConnectionParams["auth_token"],
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (s *restSource) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}
	if err := s.ValidateConnection(ctx); err != nil {
		return err
	}
	s.page = 0
	s.connected = true
	return nil
}

func (s *restSource) Disconnect(_ context.Context) error {
	s.connected = false
	return nil
}

func (s *restSource) IsConnected() bool {
	return s.connected
}

func (s *restSource) FetchData(ctx context.Context, limit int) ([]core.Document, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}

	req, err := s.newRequest(ctx, http.MethodGet)
	if err != nil {
		return nil, err
	}
	query := req.URL.Query()
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	query.Set("page", strconv.Itoa(s.page))
	req.URL.RawQuery = query.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", s.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetching from %s: status %d", s.endpoint, resp.StatusCode)
	}

	records, err := decodeResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", s.endpoint, err)
	}
	if len(records) > 0 {
		s.page++
	}
	return records, nil
}

func (s *restSource) ValidateConnection(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodHead)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", s.endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probing %s: status %d", s.endpoint, resp.StatusCode)
	}
	return nil
}

func (s *restSource) newRequest(ctx context.Context, method string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}
	return req, nil
}

func decodeResponse(body io.Reader) ([]core.Document, error) {
	var raw any
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, err
	}

	switch v := raw.(type) {
	case []any:
		return toDocuments(v), nil
	case map[string]any:
		for _, key := range []string{"items", "data", "results", "records"} {
			if list, ok := v[key].([]any); ok {
				return toDocuments(list), nil
			}
		}
		// A single object counts as one record.
		return []core.Document{v}, nil
	default:
		return nil, fmt.Errorf("unexpected response shape")
	}
}

func toDocuments(list []any) []core.Document {
	var records []core.Document
	for _, item := range list {
		if doc, ok := item.(map[string]any); ok {
			records = append(records, doc)
		}
	}
	return records
}
