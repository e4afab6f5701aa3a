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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/intake/core"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fileConfig(t *testing.T, sourceType core.SourceType, path string) core.SourceConfig {
	t.Helper()
	return core.SourceConfig{
		SourceID:         "file-src",
		SourceName:       "test file",
		Type:             sourceType,
		Mode:             core.ModeBatch,
		BatchSize:        100,
		ConnectionParams: map[string]string{"path": path},
	}
}

func TestFactoryUnsupportedType(t *testing.T) {
	_, err := New(core.SourceConfig{
		SourceID:   "queue",
		SourceName: "queue",
		Type:       core.SourceTypeMessageQueue,
		Mode:       core.ModeStreaming,
		BatchSize:  10,
	})
	assert.ErrorIs(t, err, ErrUnsupportedSourceType)
}

func TestFactoryMissingPath(t *testing.T) {
	_, err := New(core.SourceConfig{
		SourceID:   "csv",
		SourceName: "csv",
		Type:       core.SourceTypeCSVFile,
		Mode:       core.ModeBatch,
		BatchSize:  10,
	})
	assert.ErrorIs(t, err, ErrMissingParam)
}

func TestCSVSource(t *testing.T) {
	path := writeTempFile(t, "data.csv", "name,age\nalice,30\nbob,41\ncarol\n")
	src, err := New(fileConfig(t, core.SourceTypeCSVFile, path))
	require.NoError(t, err)

	ctx := context.Background()
	assert.False(t, src.IsConnected())
	require.NoError(t, src.ValidateConnection(ctx))
	require.NoError(t, src.Connect(ctx))
	assert.True(t, src.IsConnected())

	records, err := src.FetchData(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alice", records[0]["name"])
	assert.Equal(t, "30", records[0]["age"])

	// Paging continues where the last fetch stopped; short rows leave
	// trailing columns unset.
	records, err = src.FetchData(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "carol", records[0]["name"])
	assert.NotContains(t, records[0], "age")

	records, err = src.FetchData(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, src.Disconnect(ctx))
	_, err = src.FetchData(ctx, 1)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestJSONArraySource(t *testing.T) {
	path := writeTempFile(t, "data.json", `[{"id": 1, "name": "a"}, {"id": 2, "name": "b"}]`)
	src, err := New(fileConfig(t, core.SourceTypeJSONFile, path))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, src.Connect(ctx))

	records, err := src.FetchData(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0]["name"])
}

func TestJSONLinesSource(t *testing.T) {
	path := writeTempFile(t, "data.ndjson", "{\"id\": 1}\n\n{\"id\": 2}\n")
	src, err := New(fileConfig(t, core.SourceTypeJSONFile, path))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, src.Connect(ctx))

	records, err := src.FetchData(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFileSourceMissingFile(t *testing.T) {
	src, err := New(fileConfig(t, core.SourceTypeCSVFile, "/nonexistent/data.csv"))
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, src.ValidateConnection(ctx))
	assert.Error(t, src.Connect(ctx))
	assert.False(t, src.IsConnected())
}

func restConfig(endpoint, token string) core.SourceConfig {
	params := map[string]string{"url": endpoint}
	if token != "" {
		params["auth_token"] = token
	}
	return core.SourceConfig{
		SourceID:         "rest-src",
		SourceName:       "test api",
		Type:             core.SourceTypeRESTAPI,
		Mode:             core.ModeBatch,
		BatchSize:        50,
		ConnectionParams: params,
	}
}

func TestRESTSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		if r.URL.Query().Get("page") == "0" {
			json.NewEncoder(w).Encode(map[string]any{
				"items": []any{map[string]any{"id": 1.0}, map[string]any{"id": 2.0}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	}))
	defer server.Close()

	src, err := New(restConfig(server.URL, "sekrit"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, src.Connect(ctx))
	assert.True(t, src.IsConnected())

	records, err := src.FetchData(ctx, 5)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1.0, records[0]["id"])

	records, err = src.FetchData(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRESTSourceBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]any{map[string]any{"k": "v"}})
	}))
	defer server.Close()

	src, err := New(restConfig(server.URL, ""))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, src.Connect(ctx))
	records, err := src.FetchData(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "v", records[0]["k"])
}

func TestRESTSourceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	src, err := New(restConfig(server.URL, ""))
	require.NoError(t, err)

	err = src.Connect(context.Background())
	assert.Error(t, err)
	assert.False(t, src.IsConnected())
}

func TestRESTSourceInvalidURL(t *testing.T) {
	_, err := New(restConfig("not a url", ""))
	assert.Error(t, err)
}
