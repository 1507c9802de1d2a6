package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"sktvault/config"
	"sktvault/integrations/exports"
	"sktvault/integrations/indexer"
)

// runExport writes indexed events to a file with a .sha256 sidecar:
//
//	sktd export -config ./config.toml -format parquet -module raffle
func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configFile := fs.String("config", "./config.toml", "Path to the configuration file")
	format := fs.String("format", string(exports.FormatCSV), "csv, jsonl or parquet")
	out := fs.String("out", "", "Output directory (defaults to indexer.ExportDir)")
	name := fs.String("name", "", "File name without extension (defaults to events-<timestamp>)")
	module := fs.String("module", "", "Only export events from this module")
	eventType := fs.String("type", "", "Only export events of this type")
	limit := fs.Int("limit", 1000, "Maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.LoadEnvFile(""); err != nil {
		return err
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Indexer.Driver) == "" {
		return fmt.Errorf("indexer disabled in %s", *configFile)
	}
	dir := strings.TrimSpace(*out)
	if dir == "" {
		dir = cfg.Indexer.ExportDir
	}
	if dir == "" {
		dir = "."
	}
	base := strings.TrimSpace(*name)
	if base == "" {
		base = "events-" + time.Now().UTC().Format("20060102T150405Z")
	}

	db, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
	if err != nil {
		return err
	}
	idx, err := indexer.New(db)
	if err != nil {
		return err
	}
	records, err := idx.Query(context.Background(), indexer.Filter{Module: *module, Type: *eventType, Limit: *limit})
	if err != nil {
		return err
	}
	path, checksum, err := exports.WriteFile(dir, base, exports.Format(strings.ToLower(*format)), records)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d events to %s (sha256 %s)\n", len(records), path, checksum)
	return nil
}
