package outwriter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/huangsam/digitaldiary/core"
	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

var (
	stored = time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

	sampleGenerations = []schema.GenerationInfo{
		{Name: "digital-diary-v2", Entries: 15, SizeBytes: 2048, CreatedAt: stored.Add(-48 * time.Hour), LastStored: stored.Add(-time.Hour)},
		{Name: "digital-diary-v3", Entries: 15, SizeBytes: 4096, CreatedAt: stored, LastStored: stored, Current: true},
	}

	sampleEntries = []schema.EntryInfo{
		{Generation: "digital-diary-v3", Method: "GET", URL: "http://localhost:8080/", Status: 200, ContentType: "text/html", SizeBytes: 512, StoredAt: stored},
		{Generation: "digital-diary-v3", Method: "GET", URL: "http://localhost:8080/scripts/app.js", Status: 200, ContentType: "text/javascript", SizeBytes: 2048, StoredAt: stored},
	}
)

func TestWriteCacheStatusText(t *testing.T) {
	var buf bytes.Buffer
	status := schema.CacheStatus{Backend: "sqlite", Connected: true, Generations: 2, TotalEntries: 30, LastEntryTime: stored, TableSizeBytes: 1536}
	require.NoError(t, writeCacheStatusText(&buf, status))

	out := buf.String()
	assert.Contains(t, out, "sqlite (connected)")
	assert.Contains(t, out, "Generations:   2")
	assert.Contains(t, out, "Entries:       30")
	assert.Contains(t, out, "Newest entry:  2026-03-01 08:30:00")
	assert.Contains(t, out, "Oldest entry:  -")
	assert.Contains(t, out, "1.5 KiB")
}

func TestWriteCSVCacheStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCSVCacheStatus(&buf, schema.CacheStatus{Backend: "memory", Connected: true, Generations: 1, TotalEntries: 15}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "backend,connected,generations,total_entries,last_entry_time,oldest_entry_time,table_size_bytes", lines[0])
	assert.Equal(t, "memory,true,1,15,-,-,0", lines[1])
}

func TestWriteGenerationsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeGenerationsTable(&buf, sampleGenerations))

	out := buf.String()
	assert.Contains(t, out, "digital-diary-v2")
	assert.Contains(t, out, "stale")
	assert.Contains(t, out, "current")
	assert.Contains(t, out, "4.0 KiB")
}

func TestWriteCSVGenerations(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCSVGenerations(&buf, sampleGenerations))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "digital-diary-v3,true,15,4096,2026-03-01 08:30:00,2026-03-01 08:30:00", lines[2])
}

func TestWriteEntriesTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEntriesTable(&buf, sampleEntries, 24))

	out := buf.String()
	assert.Contains(t, out, "text/javascript")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "http://localhost:8080/scripts/app.js", "long URLs are truncated")
}

func TestWriteCSVEntries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCSVEntries(&buf, sampleEntries))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "content_type")
	assert.Equal(t, "digital-diary-v3,GET,http://localhost:8080/,200,text/html,512,2026-03-01 08:30:00", lines[1])
}

func TestPrintEntriesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.json")
	cfg := &contract.Config{Output: schema.JSONOut, OutputFile: path}
	require.NoError(t, NewOutWriter().WriteEntries(sampleEntries, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []schema.EntryInfo
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "http://localhost:8080/scripts/app.js", decoded[1].URL)
	assert.True(t, decoded[1].StoredAt.Equal(stored))
}

func TestPrintGenerationsCSVToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generations.csv")
	cfg := &contract.Config{Output: schema.CSVOut, OutputFile: path}
	require.NoError(t, NewOutWriter().WriteGenerations(sampleGenerations, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digital-diary-v2,false,15,2048")
}

func TestWriteRegistrationText(t *testing.T) {
	var buf bytes.Buffer
	active := schema.WorkerStatus{Version: "v3", CacheName: "digital-diary-v3", State: schema.StateActive, SkipWaiting: true}
	require.NoError(t, writeRegistrationText(&buf, core.RegistrationState{Active: &active}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "active   digital-diary-v3 active (skip-waiting: true)", lines[0])
	assert.Equal(t, "waiting  -", lines[1])
}

func TestGetMaxTableURLWidth(t *testing.T) {
	assert.Equal(t, 20, GetMaxTableURLWidth(&contract.Config{Width: 60}))
	assert.Equal(t, 50, GetMaxTableURLWidth(&contract.Config{Width: 120}))
	assert.Equal(t, 90, GetMaxTableURLWidth(&contract.Config{Width: 400}))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KiB", formatBytes(1024))
	assert.Equal(t, "2.5 MiB", formatBytes(5*1024*1024/2))
	assert.Equal(t, "-", formatTime(time.Time{}))
	assert.Equal(t, "abc", truncateURL("abc", 10))
	assert.Equal(t, "...6789", truncateURL("0123456789", 7))
}
