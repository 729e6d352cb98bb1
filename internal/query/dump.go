package query

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ai-meal-plan-api/internal/shared"

	"go.uber.org/zap"
)

// DumpRecord is one parse, written for offline inspection.
type DumpRecord struct {
	Timestamp         string                 `json:"timestamp"`
	Query             string                 `json:"query"`
	InitialExtraction Extraction             `json:"initial_extraction"`
	FinalExtraction   Extraction             `json:"final_extraction"`
	LLMLogging        shared.ValidationUsage `json:"llm_logging"`
}

// Dumper writes parse records to a directory. Nothing reads them back.
type Dumper struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewDumper creates a Dumper writing into dir.
func NewDumper(dir string, logger *zap.Logger) *Dumper {
	return &Dumper{dir: dir, logger: logger.Named("query_dump"), now: time.Now}
}

// Dump writes rec and returns the file path. Failures are logged only.
func (d *Dumper) Dump(rec DumpRecord) string {
	if d == nil {
		return ""
	}
	now := d.now()
	if rec.Timestamp == "" {
		rec.Timestamp = now.UTC().Format(time.RFC3339Nano)
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		d.logger.Warn("failed to create dump directory", zap.String("dir", d.dir), zap.Error(err))
		return ""
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		d.logger.Warn("failed to marshal query dump", zap.Error(err))
		return ""
	}

	name := fmt.Sprintf("query_dump_%s_%09d.json", now.Format("20060102_150405"), now.Nanosecond())
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		d.logger.Warn("failed to write query dump", zap.String("path", path), zap.Error(err))
		return ""
	}
	d.logger.Debug("query dump written", zap.String("path", path))
	return path
}
