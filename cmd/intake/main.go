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


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/intake"
	"github.com/poiesic/intake/core"
)

func main() {
	app := &cli.App{
		Name:  "intake",
		Usage: "Data ingestion framework for heterogeneous sources",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Drain a source into the local store",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "source-id",
						Usage:    "Identifier for the source",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "type",
						Usage:    "Source type (csv_file, json_file, rest_api)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "path",
						Usage: "File path for file sources",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Endpoint URL for HTTP sources",
					},
					&cli.StringFlag{
						Name:  "auth-token",
						Usage: "Bearer token for HTTP sources",
					},
					&cli.StringFlag{
						Name:  "rules",
						Usage: "Path to a JSON file with validation and transformation rules",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to fetch per batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed fetches",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "query",
				Usage:  "Print stored records for a source as JSON lines",
				Action: queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "source-id",
						Usage:    "Identifier for the source",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "since",
						Usage: "How far back to query",
						Value: 24 * time.Hour,
					},
				},
			},
			{
				Name:   "health",
				Usage:  "Print a framework health snapshot as JSON",
				Action: healthCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func ingestCommand(c *cli.Context) error {
	ctx := context.Background()

	sourceType, ok := parseSourceType(c.String("type"))
	if !ok {
		return fmt.Errorf("unknown source type %q", c.String("type"))
	}

	cfg := core.SourceConfig{
		SourceID:   c.String("source-id"),
		SourceName: c.String("source-id"),
		Type:       sourceType,
		Mode:       core.ModeBatch,
		BatchSize:  c.Int("batch-size"),
		MaxRetries: c.Int("max-retries"),
		RetryDelay: c.Duration("retry-delay"),
		ConnectionParams: map[string]string{
			"path":       c.String("path"),
			"url":        c.String("url"),
			"auth_token": c.String("auth-token"),
		},
	}

	if rulesPath := c.String("rules"); rulesPath != "" {
		if err := loadRules(rulesPath, &cfg); err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
	}

	engine, err := intake.New(intake.WithDataDir(c.String("db")))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "err", err)
		}
	}()

	if err := engine.RegisterSource(cfg); err != nil {
		return err
	}
	if err := engine.StartIngestion(ctx, cfg.SourceID); err != nil {
		return err
	}

	stored, err := engine.DrainSource(ctx, cfg.SourceID)
	if err != nil {
		return fmt.Errorf("ingestion failed after %d records: %w", stored, err)
	}

	stats, _ := engine.GetIngestionStats(cfg.SourceID)
	fmt.Fprintf(os.Stderr, "Stored %d records from %s\n", stored, cfg.SourceID)
	if stats != nil {
		fmt.Fprintf(os.Stderr, "Batches: %v, failed records: %v\n",
			stats["total_batches"], stats["failed_records"])
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	ctx := context.Background()

	engine, err := intake.New(intake.WithDataDir(c.String("db")))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		engine.Shutdown(shutdownCtx)
	}()

	end := time.Now().Add(time.Minute)
	start := time.Now().Add(-c.Duration("since"))
	records, err := engine.QueryRecords(ctx, c.String("source-id"), start, end)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "%d records\n", len(records))
	return nil
}

func healthCommand(c *cli.Context) error {
	ctx := context.Background()

	engine, err := intake.New(intake.WithDataDir(c.String("db")))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		engine.Shutdown(shutdownCtx)
	}()

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(engine.GetFrameworkHealth())
}

func parseSourceType(name string) (core.SourceType, bool) {
	switch strings.ToLower(name) {
	case "csv_file", "csv":
		return core.SourceTypeCSVFile, true
	case "json_file", "json":
		return core.SourceTypeJSONFile, true
	case "rest_api", "rest":
		return core.SourceTypeRESTAPI, true
	case "web_scrape":
		return core.SourceTypeWebScrape, true
	default:
		return 0, false
	}
}

// loadRules reads a JSON file shaped as
// {"validation_rules": {...}, "transformation_rules": {...}} and folds it
// into the source configuration.
func loadRules(path string, cfg *core.SourceConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc struct {
		ValidationRules     core.Document `json:"validation_rules"`
		TransformationRules core.Document `json:"transformation_rules"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	cfg.ValidationRules = doc.ValidationRules
	cfg.TransformationRules = doc.TransformationRules
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
