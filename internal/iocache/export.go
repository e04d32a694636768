package iocache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/internal/parquet"
	"github.com/huangsam/digitaldiary/schema"
)

// ExecuteCacheExport performs the export of cache metadata to Parquet files.
// Bodies are not exported; only the descriptor and size of each entry.
func ExecuteCacheExport(ctx context.Context, store contract.CacheStorage, currentName, outputFile string, out io.Writer) error {
	// Validate that output file is specified
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}

	status, err := store.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cache status: %w", err)
	}
	if status.Generations == 0 {
		return errors.New("no cache generations found to export")
	}

	_, _ = fmt.Fprintf(out, "Exporting data from %s backend...\n", status.Backend)
	_, _ = fmt.Fprintf(out, "Total generations: %d\n", status.Generations)
	_, _ = fmt.Fprintf(out, "Total entries: %d\n", status.TotalEntries)

	generations, err := store.Generations(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve generations: %w", err)
	}
	var infos []schema.EntryInfo
	for i := range generations {
		generations[i].Current = generations[i].Name == currentName
		entries, err := store.Entries(ctx, generations[i].Name)
		if err != nil {
			return fmt.Errorf("failed to retrieve entries of %s: %w", generations[i].Name, err)
		}
		for _, e := range entries {
			infos = append(infos, e.Info())
		}
	}

	generationRows := parquet.ConvertGenerationRecords(generations)
	generationsFile := outputFile + ".generations.parquet"
	if err := parquet.WriteGenerationsParquet(generationRows, generationsFile); err != nil {
		return fmt.Errorf("failed to write generations: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Exported %d generations to: %s\n", len(generationRows), generationsFile)

	entryRows := parquet.ConvertEntryRecords(infos)
	entriesFile := outputFile + ".entries.parquet"
	if err := parquet.WriteCacheEntriesParquet(entryRows, entriesFile); err != nil {
		return fmt.Errorf("failed to write entries: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Exported %d entries to: %s\n", len(entryRows), entriesFile)

	_, _ = fmt.Fprintln(out, "\nExport complete! The Parquet files can be used with DuckDB, Pandas (via pyarrow) or Spark.")
	return nil
}
