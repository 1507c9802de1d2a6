package exports

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"sktvault/integrations/indexer"
)

type parquetRow struct {
	Sequence    int64  `parquet:"name=sequence, type=INT64"`
	Type        string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Module      string `parquet:"name=module, type=BYTE_ARRAY, convertedtype=UTF8"`
	Actor       string `parquet:"name=actor, type=BYTE_ARRAY, convertedtype=UTF8"`
	Vault       string `parquet:"name=vault, type=BYTE_ARRAY, convertedtype=UTF8"`
	Raffle      string `parquet:"name=raffle, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes  string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	Fingerprint string `parquet:"name=fingerprint, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecordedAt  string `parquet:"name=recorded_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// EventsParquet encodes indexed events as a snappy-compressed parquet file.
func EventsParquet(records []indexer.EventRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	fw := writerfile.NewWriterFile(buffer)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		return nil, "", fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, rec := range records {
		row := &parquetRow{
			Sequence:    int64(rec.Sequence),
			Type:        rec.Type,
			Module:      rec.Module,
			Actor:       rec.Actor,
			Vault:       rec.Vault,
			Raffle:      rec.Raffle,
			Attributes:  rec.Attributes,
			Fingerprint: rec.Fingerprint,
			RecordedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, "", fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, "", fmt.Errorf("exports: parquet flush: %w", err)
	}
	return checksummed(buffer.Bytes())
}

// Format names an export encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// Encode renders records in the requested format.
func Encode(format Format, records []indexer.EventRecord) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		return EventsCSV(records)
	case FormatJSONL:
		return EventsJSONL(records)
	case FormatParquet:
		return EventsParquet(records)
	default:
		return nil, "", fmt.Errorf("exports: unknown format %q", format)
	}
}

// WriteFile encodes records into dir/name.<format> and writes a companion
// .sha256 file. It returns the data file path and checksum.
func WriteFile(dir, name string, format Format, records []indexer.EventRecord) (string, string, error) {
	data, checksum, err := Encode(format, records)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("exports: create dir: %w", err)
	}
	path := filepath.Join(dir, name+"."+string(format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("exports: write %s: %w", path, err)
	}
	if err := os.WriteFile(path+".sha256", []byte(checksum+"  "+filepath.Base(path)+"\n"), 0o644); err != nil {
		return "", "", fmt.Errorf("exports: write checksum: %w", err)
	}
	return path, checksum, nil
}
