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
	"fmt"

	"github.com/poiesic/intake/core"
)

// Source is a connected data origin. Implementations are not safe for
// concurrent use; the engine serializes access per source.
type Source interface {
	// Connect establishes the connection. Calling Connect on a connected
	// source is a no-op.
	Connect(ctx context.Context) error

	// Disconnect releases the connection. Safe to call when disconnected.
	Disconnect(ctx context.Context) error

	// IsConnected reports the current connection state.
	IsConnected() bool

	// FetchData returns up to limit records. Repeated calls advance
	// through the source; an empty slice with nil error means drained.
	FetchData(ctx context.Context, limit int) ([]core.Document, error)

	// ValidateConnection probes the source without fetching data.
	ValidateConnection(ctx context.Context) error
}

// New builds a Source for the configured type. The config must already be
// valid; unknown source types are an error.
func New(cfg core.SourceConfig) (Source, error) {
	if err := core.ValidateSourceConfig(&cfg); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case core.SourceTypeCSVFile:
		return newFileSource(cfg, formatCSV)
	case core.SourceTypeJSONFile:
		return newFileSource(cfg, formatJSON)
	case core.SourceTypeRESTAPI, core.SourceTypeGraphQLAPI, core.SourceTypeWebScrape:
		return newRESTSource(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, cfg.Type)
	}
}
