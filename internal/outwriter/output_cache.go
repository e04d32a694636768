package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/huangsam/digitaldiary/core"
	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintCacheStatus outputs the cache store status, dispatching based on the output format configured.
func PrintCacheStatus(status schema.CacheStatus, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, status)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVCacheStatus(w, status)
		}, "Wrote CSV")
	default:
		return writeCacheStatusText(os.Stdout, status)
	}
}

// writeCacheStatusText writes the status as labeled lines.
func writeCacheStatusText(w io.Writer, status schema.CacheStatus) error {
	connected := contract.RedundantColor.Sprint("disconnected")
	if status.Connected {
		connected = contract.ActiveColor.Sprint("connected")
	}
	_, _ = fmt.Fprintf(w, "Backend:       %s (%s)\n", status.Backend, connected)
	_, _ = fmt.Fprintf(w, "Generations:   %d\n", status.Generations)
	_, _ = fmt.Fprintf(w, "Entries:       %d\n", status.TotalEntries)
	_, _ = fmt.Fprintf(w, "Newest entry:  %s\n", formatTime(status.LastEntryTime))
	_, _ = fmt.Fprintf(w, "Oldest entry:  %s\n", formatTime(status.OldestEntryTime))
	_, err := fmt.Fprintf(w, "Size:          %s\n", formatBytes(status.TableSizeBytes))
	return err
}

// writeCSVCacheStatus writes the status as a single CSV row.
func writeCSVCacheStatus(w io.Writer, status schema.CacheStatus) error {
	header := []string{"backend", "connected", "generations", "total_entries", "last_entry_time", "oldest_entry_time", "table_size_bytes"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		return cw.Write([]string{
			status.Backend,
			strconv.FormatBool(status.Connected),
			strconv.Itoa(status.Generations),
			strconv.Itoa(status.TotalEntries),
			formatTime(status.LastEntryTime),
			formatTime(status.OldestEntryTime),
			strconv.FormatInt(status.TableSizeBytes, 10),
		})
	})
}

// PrintGenerations outputs generation summaries, dispatching based on the output format configured.
func PrintGenerations(infos []schema.GenerationInfo, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, infos)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVGenerations(w, infos)
		}, "Wrote CSV")
	default:
		if err := writeGenerationsTable(os.Stdout, infos); err != nil {
			return fmt.Errorf("error writing table output: %w", err)
		}
		fmt.Printf("Showing %d generations. Current generation: %s\n", len(infos), cfg.CacheName())
		return nil
	}
}

// writeGenerationsTable renders generations with tablewriter.
func writeGenerationsTable(w io.Writer, infos []schema.GenerationInfo) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Generation", "State", "Entries", "Size", "Created", "Last Stored"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, g := range infos {
		label := contract.RedundantColor.Sprint("stale")
		if g.Current {
			label = contract.ActiveColor.Sprint("current")
		}
		data = append(data, []string{
			g.Name,
			label,
			strconv.Itoa(g.Entries),
			formatBytes(g.SizeBytes),
			formatTime(g.CreatedAt),
			formatTime(g.LastStored),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// writeCSVGenerations writes generations as CSV rows.
func writeCSVGenerations(w io.Writer, infos []schema.GenerationInfo) error {
	header := []string{"name", "current", "entries", "size_bytes", "created_at", "last_stored"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, g := range infos {
			record := []string{
				g.Name,
				strconv.FormatBool(g.Current),
				strconv.Itoa(g.Entries),
				strconv.FormatInt(g.SizeBytes, 10),
				formatTime(g.CreatedAt),
				formatTime(g.LastStored),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		return nil
	})
}

// PrintEntries outputs entry metadata, dispatching based on the output format configured.
func PrintEntries(infos []schema.EntryInfo, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, infos)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVEntries(w, infos)
		}, "Wrote CSV")
	default:
		if err := writeEntriesTable(os.Stdout, infos, GetMaxTableURLWidth(cfg)); err != nil {
			return fmt.Errorf("error writing table output: %w", err)
		}
		var total int64
		for _, e := range infos {
			total += e.SizeBytes
		}
		fmt.Printf("Showing %d entries (%s). Cache backend: %s\n", len(infos), formatBytes(total), cfg.CacheBackend)
		return nil
	}
}

// writeEntriesTable renders entries with tablewriter.
func writeEntriesTable(w io.Writer, infos []schema.EntryInfo, urlWidth int) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Method", "URL", "Status", "Type", "Size", "Stored"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, e := range infos {
		data = append(data, []string{
			e.Method,
			truncateURL(e.URL, urlWidth),
			strconv.Itoa(e.Status),
			e.ContentType,
			formatBytes(e.SizeBytes),
			formatTime(e.StoredAt),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// writeCSVEntries writes entries as CSV rows.
func writeCSVEntries(w io.Writer, infos []schema.EntryInfo) error {
	header := []string{"generation", "method", "url", "status", "content_type", "size_bytes", "stored_at"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, e := range infos {
			record := []string{
				e.Generation,
				e.Method,
				e.URL,
				strconv.Itoa(e.Status),
				e.ContentType,
				strconv.FormatInt(e.SizeBytes, 10),
				formatTime(e.StoredAt),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		return nil
	})
}

// PrintRegistration outputs the workers of a registration.
func PrintRegistration(state core.RegistrationState, cfg *contract.Config) error {
	if cfg.Output == schema.JSONOut {
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, state)
		}, "Wrote JSON")
	}
	return writeRegistrationText(os.Stdout, state)
}

// writeRegistrationText writes one line per worker slot.
func writeRegistrationText(w io.Writer, state core.RegistrationState) error {
	line := func(slot string, s *schema.WorkerStatus) {
		if s == nil {
			_, _ = fmt.Fprintf(w, "%-8s -\n", slot)
			return
		}
		_, _ = fmt.Fprintf(w, "%-8s %s %s (skip-waiting: %t)\n", slot, s.CacheName, contract.GetColorState(s.State), s.SkipWaiting)
	}
	line("active", state.Active)
	line("waiting", state.Waiting)
	return nil
}
