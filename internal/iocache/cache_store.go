// Package iocache is the durable cache store behind the worker.
package iocache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Table names created by the embedded migrations.
const (
	generationsTable = "cache_generations"
	entriesTable     = "cache_entries"
)

// CacheStorageImpl handles durable storage of cache generations using various database backends.
type CacheStorageImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
	connStr string
}

var _ contract.CacheStorage = &CacheStorageImpl{} // Compile-time check

// EntryKey returns the storage key for a request descriptor.
// It is a hash so that arbitrarily long URLs fit an indexed column on every backend.
func EntryKey(method, url string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(method) + " " + url))
	return hex.EncodeToString(sum[:])
}

// driverFor returns the database/sql driver name for a backend.
func driverFor(backend schema.DatabaseBackend) (string, error) {
	switch backend {
	case schema.SQLiteBackend:
		return "sqlite", nil
	case schema.MySQLBackend:
		return "mysql", nil
	case schema.PostgreSQLBackend:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported cache backend: %s. Must be sqlite, mysql, postgresql, or memory", backend)
	}
}

// openDB opens and pings a database for the backend.
func openDB(backend schema.DatabaseBackend, connStr string) (*sql.DB, error) {
	driverName, err := driverFor(backend)
	if err != nil {
		return nil, err
	}

	switch backend {
	case schema.SQLiteBackend:
		if connStr == "" {
			connStr = GetDBFilePath()
		}
	case schema.MySQLBackend:
		// connStr should be:
		// user:password@tcp(host:port)/dbname
	case schema.PostgreSQLBackend:
		// connStr should be:
		// host=localhost port=5432 user=postgres password=mysecretpassword dbname=postgres
	}

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache database: %w", backend, err)
	}
	if backend == schema.SQLiteBackend {
		// Limit SQLite to a single open connection to avoid "database is locked" errors
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database. Check that the server is running and connection parameters are valid: %w", backend, err)
	}
	return db, nil
}

// NewCacheStorage initializes and returns a new CacheStorage based on the backend type.
func NewCacheStorage(backend schema.DatabaseBackend, connStr string) (contract.CacheStorage, error) {
	if backend == schema.MemoryBackend {
		return NewMemoryStorage(), nil
	}

	db, err := openDB(backend, connStr)
	if err != nil {
		return nil, err
	}

	if err := migrateLatest(db, backend); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &CacheStorageImpl{
		db:      db,
		backend: backend,
		connStr: connStr,
	}, nil
}

// bind rewrites ? placeholders into the backend's placeholder style.
func (ps *CacheStorageImpl) bind(query string) string {
	if ps.backend != schema.PostgreSQLBackend {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// getEnsureGenerationQuery returns the insert-if-absent query for a generation row.
func (ps *CacheStorageImpl) getEnsureGenerationQuery() string {
	quoted := quoteTableName(generationsTable, ps.backend)
	switch ps.backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`INSERT IGNORE INTO %s (name, created_at) VALUES (?, ?)`, quoted)
	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`INSERT INTO %s (name, created_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`, quoted)
	default: // SQLite
		return fmt.Sprintf(`INSERT OR IGNORE INTO %s (name, created_at) VALUES (?, ?)`, quoted)
	}
}

// getLockGenerationQuery selects a generation row and holds it until the
// transaction ends. SQLite serializes writers on its own.
func (ps *CacheStorageImpl) getLockGenerationQuery() string {
	quoted := quoteTableName(generationsTable, ps.backend)
	switch ps.backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`SELECT 1 FROM %s WHERE name = ? FOR SHARE`, quoted)
	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`SELECT 1 FROM %s WHERE name = $1 FOR SHARE`, quoted)
	default: // SQLite
		return fmt.Sprintf(`SELECT 1 FROM %s WHERE name = ?`, quoted)
	}
}

// getUpsertQuery returns the UPSERT query for an entry.
func (ps *CacheStorageImpl) getUpsertQuery() string {
	quoted := quoteTableName(entriesTable, ps.backend)
	cols := "generation, cache_key, method, url, status, header, body, stored_at"
	switch ps.backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?) AS new
			ON DUPLICATE KEY UPDATE method = new.method, url = new.url, status = new.status, header = new.header, body = new.body, stored_at = new.stored_at`, quoted, cols)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (generation, cache_key) DO UPDATE SET method = EXCLUDED.method, url = EXCLUDED.url, status = EXCLUDED.status, header = EXCLUDED.header, body = EXCLUDED.body, stored_at = EXCLUDED.stored_at`, quoted, cols)

	default: // SQLite
		return fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, quoted, cols)
	}
}

// sizeExpr returns the byte length expression for the body column.
func (ps *CacheStorageImpl) sizeExpr() string {
	if ps.backend == schema.PostgreSQLBackend {
		return "OCTET_LENGTH(e.body)"
	}
	return "LENGTH(e.body)"
}

// Keys returns the names of all generations.
func (ps *CacheStorageImpl) Keys(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT name FROM %s ORDER BY name`, quoteTableName(generationsTable, ps.backend))
	rows, err := ps.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes a generation with all of its entries.
func (ps *CacheStorageImpl) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The generation row goes first: it serializes with Put, which locks
	// the same row before writing an entry.
	genQuery := ps.bind(fmt.Sprintf(`DELETE FROM %s WHERE name = ?`, quoteTableName(generationsTable, ps.backend)))
	res, err := tx.ExecContext(ctx, genQuery, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete generation %s: %w", name, err)
	}
	entriesQuery := ps.bind(fmt.Sprintf(`DELETE FROM %s WHERE generation = ?`, quoteTableName(entriesTable, ps.backend)))
	if _, err := tx.ExecContext(ctx, entriesQuery, name); err != nil {
		return false, fmt.Errorf("failed to delete entries of %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit deletion of %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return true, nil
	}
	return n > 0, nil
}

// Match retrieves the entry for a request descriptor from one generation.
func (ps *CacheStorageImpl) Match(ctx context.Context, name, method, url string) (schema.CachedEntry, error) {
	query := ps.bind(fmt.Sprintf(`SELECT method, url, status, header, body, stored_at FROM %s WHERE generation = ? AND cache_key = ?`,
		quoteTableName(entriesTable, ps.backend)))
	row := ps.db.QueryRowContext(ctx, query, name, EntryKey(method, url))

	entry, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.CachedEntry{}, contract.ErrCacheMiss
	}
	if err != nil {
		return schema.CachedEntry{}, err
	}
	entry.Generation = name
	return entry, nil
}

// Put creates or overwrites a single entry of an existing generation.
func (ps *CacheStorageImpl) Put(ctx context.Context, entry schema.CachedEntry) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, ps.getLockGenerationQuery(), entry.Generation).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", contract.ErrGenerationNotFound, entry.Generation)
	}
	if err != nil {
		return fmt.Errorf("failed to look up generation %s: %w", entry.Generation, err)
	}

	if err := ps.writeEntries(ctx, tx, entry.Generation, []schema.CachedEntry{entry}, time.Now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry %s: %w", entry.URL, err)
	}
	return nil
}

// PutAll writes all entries into a generation inside one transaction,
// creating the generation when it does not exist yet.
func (ps *CacheStorageImpl) PutAll(ctx context.Context, name string, entries []schema.CachedEntry) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, ps.getEnsureGenerationQuery(), name, now.UnixNano()); err != nil {
		return fmt.Errorf("failed to create generation %s: %w", name, err)
	}
	if err := ps.writeEntries(ctx, tx, name, entries, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit generation %s: %w", name, err)
	}
	return nil
}

// writeEntries upserts entries into generation name within tx.
func (ps *CacheStorageImpl) writeEntries(ctx context.Context, tx *sql.Tx, name string, entries []schema.CachedEntry, now time.Time) error {
	stmt, err := tx.PrepareContext(ctx, ps.getUpsertQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		header, err := json.Marshal(e.Header)
		if err != nil {
			return fmt.Errorf("failed to encode headers for %s: %w", e.URL, err)
		}
		storedAt := e.StoredAt
		if storedAt.IsZero() {
			storedAt = now
		}
		body := e.Body
		if body == nil {
			body = []byte{}
		}
		method := strings.ToUpper(e.Method)
		if _, err := stmt.ExecContext(ctx, name, EntryKey(method, e.URL), method, e.URL, e.Status, string(header), body, storedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to store %s %s: %w", method, e.URL, err)
		}
	}
	return nil
}

// Entries lists the entries of a generation ordered by URL.
func (ps *CacheStorageImpl) Entries(ctx context.Context, name string) ([]schema.CachedEntry, error) {
	query := ps.bind(fmt.Sprintf(`SELECT method, url, status, header, body, stored_at FROM %s WHERE generation = ? ORDER BY url, method`,
		quoteTableName(entriesTable, ps.backend)))
	rows, err := ps.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries of %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []schema.CachedEntry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entry.Generation = name
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Generations summarizes every generation.
func (ps *CacheStorageImpl) Generations(ctx context.Context) ([]schema.GenerationInfo, error) {
	query := fmt.Sprintf(`SELECT g.name, g.created_at, COUNT(e.cache_key), COALESCE(SUM(%s), 0), COALESCE(MAX(e.stored_at), 0)
		FROM %s g LEFT JOIN %s e ON e.generation = g.name
		GROUP BY g.name, g.created_at ORDER BY g.name`,
		ps.sizeExpr(), quoteTableName(generationsTable, ps.backend), quoteTableName(entriesTable, ps.backend))
	rows, err := ps.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []schema.GenerationInfo
	for rows.Next() {
		var info schema.GenerationInfo
		var created, last int64
		if err := rows.Scan(&info.Name, &created, &info.Entries, &info.SizeBytes, &last); err != nil {
			return nil, fmt.Errorf("failed to scan generation summary: %w", err)
		}
		info.CreatedAt = time.Unix(0, created)
		if last > 0 {
			info.LastStored = time.Unix(0, last)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close closes the underlying DB connection.
func (ps *CacheStorageImpl) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

// GetStatus returns status information about the cache store.
func (ps *CacheStorageImpl) GetStatus(ctx context.Context) (schema.CacheStatus, error) {
	status := schema.CacheStatus{
		Backend:   string(ps.backend),
		Connected: ps.db != nil,
	}
	if ps.db == nil {
		return status, nil
	}

	genQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(generationsTable, ps.backend))
	if err := ps.db.QueryRowContext(ctx, genQuery).Scan(&status.Generations); err != nil {
		return status, fmt.Errorf("failed to count generations: %w", err)
	}

	quotedEntries := quoteTableName(entriesTable, ps.backend)
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", quotedEntries)
	if err := ps.db.QueryRowContext(ctx, countQuery).Scan(&status.TotalEntries); err != nil {
		return status, fmt.Errorf("failed to get total entries: %w", err)
	}
	if status.TotalEntries == 0 {
		return status, nil
	}

	var lastTs, oldestTs int64
	rangeQuery := fmt.Sprintf("SELECT MAX(stored_at), MIN(stored_at) FROM %s", quotedEntries)
	if err := ps.db.QueryRowContext(ctx, rangeQuery).Scan(&lastTs, &oldestTs); err != nil {
		return status, fmt.Errorf("failed to get entry time range: %w", err)
	}
	status.LastEntryTime = time.Unix(0, lastTs)
	status.OldestEntryTime = time.Unix(0, oldestTs)

	// Fallback rough estimate when the backend cannot report its size
	status.TableSizeBytes = int64(status.TotalEntries) * 1000
	switch ps.backend {
	case schema.SQLiteBackend:
		sizeQuery := "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()"
		if err := ps.db.QueryRowContext(ctx, sizeQuery).Scan(&status.TableSizeBytes); err != nil {
			status.TableSizeBytes = 0
		}
	case schema.MySQLBackend:
		cfg, err := mysql.ParseDSN(ps.connStr)
		if err != nil || cfg.DBName == "" {
			break
		}
		sizeQuery := "SELECT data_length + index_length FROM information_schema.tables WHERE table_schema = ? AND table_name = ?"
		var size int64
		if err := ps.db.QueryRowContext(ctx, sizeQuery, cfg.DBName, entriesTable).Scan(&size); err == nil {
			status.TableSizeBytes = size
		}
	case schema.PostgreSQLBackend:
		var size int64
		if err := ps.db.QueryRowContext(ctx, "SELECT pg_total_relation_size($1)", entriesTable).Scan(&size); err == nil {
			status.TableSizeBytes = size
		}
	}

	return status, nil
}

// scanEntry scans the shared entry column list.
func scanEntry(scan func(dest ...any) error) (schema.CachedEntry, error) {
	var entry schema.CachedEntry
	var header string
	var storedAt int64
	if err := scan(&entry.Method, &entry.URL, &entry.Status, &header, &entry.Body, &storedAt); err != nil {
		return entry, err
	}
	entry.Header = http.Header{}
	if header != "" {
		if err := json.Unmarshal([]byte(header), &entry.Header); err != nil {
			return entry, fmt.Errorf("failed to decode headers for %s: %w", entry.URL, err)
		}
	}
	entry.StoredAt = time.Unix(0, storedAt)
	return entry, nil
}

// quoteTableName returns the properly quoted table name for the given backend.
func quoteTableName(name string, backend schema.DatabaseBackend) string {
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf("`%s`", name)
	default: // SQLite and PostgreSQL
		return fmt.Sprintf("\"%s\"", name)
	}
}
