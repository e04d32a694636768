package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for the cache store.
	DatabaseBackend string

	// WorkerState represents a lifecycle state of a cache worker.
	WorkerState string

	// ControlMessage represents a message kind accepted on the worker control channel.
	ControlMessage string
)

// All output modes supported.
const (
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	CSVOut     OutputMode = "csv"
	ParquetOut OutputMode = "parquet"
)

// All cache backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	MemoryBackend     DatabaseBackend = "memory"
)

// Worker lifecycle states, in the order a healthy worker moves through them.
const (
	StateParsed     WorkerState = "parsed"
	StateInstalling WorkerState = "installing"
	StateWaiting    WorkerState = "waiting"
	StateActivating WorkerState = "activating"
	StateActive     WorkerState = "active"
	StateRedundant  WorkerState = "redundant" // install failed or replaced
)

// MessageSkipWaiting forces a waiting worker to activate immediately.
const MessageSkipWaiting ControlMessage = "skip-waiting"

// Defaults for cache generation naming.
const (
	DefaultCachePrefix  = "digital-diary"
	DefaultCacheVersion = "v3"
)

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut:    {},
	JSONOut:    {},
	CSVOut:     {},
	ParquetOut: {},
}

// ValidCacheBackends lists all valid cache backends.
var ValidCacheBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	MemoryBackend:     {},
}
