// Package parquet provides data structures and functions for exporting cached
// entry metadata to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/huangsam/digitaldiary/schema"
	"github.com/parquet-go/parquet-go"
)

// CacheEntryRow represents the metadata of a single cached response.
// This struct maps to the cache_entries database table, minus the body.
type CacheEntryRow struct {
	// Generation is the cache name the entry belongs to
	Generation string `parquet:"generation,snappy,dict"`

	// Method is the request method of the descriptor
	Method string `parquet:"method,snappy,dict"`

	// URL is the absolute request URL
	URL string `parquet:"url,snappy"`

	// Status is the stored HTTP status code
	Status int32 `parquet:"status,snappy"`

	// ContentType is the stored Content-Type header (nullable)
	ContentType *string `parquet:"content_type,optional,snappy"`

	// SizeBytes is the length of the stored body
	SizeBytes int64 `parquet:"size_bytes,snappy"`

	// StoredAt is when the entry was last written (stored as TIMESTAMP with nanosecond precision)
	StoredAt time.Time `parquet:"stored_at,snappy"`
}

// GenerationRow represents one cache generation summary.
type GenerationRow struct {
	Name      string    `parquet:"name,snappy"`
	Entries   int32     `parquet:"entries,snappy"`
	SizeBytes int64     `parquet:"size_bytes,snappy"`
	CreatedAt time.Time `parquet:"created_at,snappy"`
	Current   bool      `parquet:"current"`
}

// writeRows writes rows of any struct type to a Parquet file.
func writeRows[T any](data []T, outputPath string) error {
	// Create the output file
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// The schema is automatically derived from the struct tags
	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// WriteCacheEntriesParquet writes a slice of CacheEntryRow structs to a Parquet file.
func WriteCacheEntriesParquet(data []CacheEntryRow, outputPath string) error {
	return writeRows(data, outputPath)
}

// WriteGenerationsParquet writes a slice of GenerationRow structs to a Parquet file.
func WriteGenerationsParquet(data []GenerationRow, outputPath string) error {
	return writeRows(data, outputPath)
}

// ConvertEntryRecords converts schema.EntryInfo to CacheEntryRow for Parquet export.
func ConvertEntryRecords(records []schema.EntryInfo) []CacheEntryRow {
	result := make([]CacheEntryRow, len(records))
	for i, record := range records {
		row := CacheEntryRow{
			Generation: record.Generation,
			Method:     record.Method,
			URL:        record.URL,
			Status:     int32(record.Status),
			SizeBytes:  record.SizeBytes,
			StoredAt:   record.StoredAt,
		}
		if record.ContentType != "" {
			ct := record.ContentType
			row.ContentType = &ct
		}
		result[i] = row
	}
	return result
}

// ConvertGenerationRecords converts schema.GenerationInfo to GenerationRow for Parquet export.
func ConvertGenerationRecords(records []schema.GenerationInfo) []GenerationRow {
	result := make([]GenerationRow, len(records))
	for i, record := range records {
		result[i] = GenerationRow{
			Name:      record.Name,
			Entries:   int32(record.Entries),
			SizeBytes: record.SizeBytes,
			CreatedAt: record.CreatedAt,
			Current:   record.Current,
		}
	}
	return result
}
