// Package source defines the Source interface and its built-in
// implementations: local CSV and JSON files, and JSON-over-HTTP endpoints.
// The factory in New maps a source configuration onto the matching
// implementation.
package source
