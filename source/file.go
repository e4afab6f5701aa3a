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
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/poiesic/intake/core"
)

type fileFormat int

const (
	formatCSV fileFormat = iota + 1
	formatJSON
)

// fileSource reads records from a local CSV or JSON file. The whole file is
// decoded on Connect; FetchData pages through the decoded records.
type fileSource struct {
	cfg       core.SourceConfig
	format    fileFormat
	path      string
	connected bool
	records   []core.Document
	offset    int
}

func newFileSource(cfg core.SourceConfig, format fileFormat) (*fileSource, error) {
	path := cfg.ConnectionParams["path"]
	if path == "" {
		return nil, fmt.Errorf("%w: path", ErrMissingParam)
	}
	return &fileSource{cfg: cfg, format: format, path: path}, nil
}

func (f *fileSource) Connect(_ context.Context) error {
	if f.connected {
		return nil
	}

	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.path, err)
	}
	defer file.Close()

	switch f.format {
	case formatCSV:
		f.records, err = decodeCSV(file)
	case formatJSON:
		f.records, err = decodeJSON(file)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.path, err)
	}

	f.offset = 0
	f.connected = true
	return nil
}

func (f *fileSource) Disconnect(_ context.Context) error {
	f.connected = false
	f.records = nil
	f.offset = 0
	return nil
}

func (f *fileSource) IsConnected() bool {
	return f.connected
}

func (f *fileSource) FetchData(_ context.Context, limit int) ([]core.Document, error) {
	if !f.connected {
		return nil, ErrNotConnected
	}
	if limit <= 0 {
		limit = f.cfg.BatchSize
	}
	if limit <= 0 || f.offset >= len(f.records) {
		return nil, nil
	}

	end := min(f.offset+limit, len(f.records))
	page := f.records[f.offset:end]
	f.offset = end
	return page, nil
}

func (f *fileSource) ValidateConnection(_ context.Context) error {
	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", f.path)
	}
	return nil
}

// decodeCSV maps each data row onto the header names. Rows shorter than the
// header leave the trailing fields unset.
func decodeCSV(r io.Reader) ([]core.Document, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []core.Document
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		doc := make(core.Document, len(header))
		for i, name := range header {
			if i < len(row) {
				doc[name] = row[i]
			}
		}
		records = append(records, doc)
	}
	return records, nil
}

// decodeJSON accepts either a top-level array of objects or newline
// delimited objects.
func decodeJSON(r io.Reader) ([]core.Document, error) {
	buffered := bufio.NewReader(r)
	first, err := firstByte(buffered)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if first == '[' {
		var records []core.Document
		if err := json.NewDecoder(buffered).Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var records []core.Document
	scanner := bufio.NewScanner(buffered)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc core.Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return nil, err
		}
		records = append(records, doc)
	}
	return records, scanner.Err()
}

// firstByte peeks past leading whitespace without consuming input.
func firstByte(r *bufio.Reader) (byte, error) {
	for n := 1; ; n++ {
		peeked, err := r.Peek(n)
		if err != nil {
			return 0, err
		}
		c := peeked[n-1]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		return c, nil
	}
}
