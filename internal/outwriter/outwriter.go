// Package outwriter has output and writer logic.
package outwriter

import (
	"github.com/huangsam/digitaldiary/core"
	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API for the commands.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteCacheStatus prints the cache store status using the configured output format.
func (ow *OutWriter) WriteCacheStatus(status schema.CacheStatus, cfg *contract.Config) error {
	return PrintCacheStatus(status, cfg)
}

// WriteGenerations prints the generation summaries using the configured output format.
func (ow *OutWriter) WriteGenerations(infos []schema.GenerationInfo, cfg *contract.Config) error {
	return PrintGenerations(infos, cfg)
}

// WriteEntries prints entry metadata using the configured output format.
func (ow *OutWriter) WriteEntries(infos []schema.EntryInfo, cfg *contract.Config) error {
	return PrintEntries(infos, cfg)
}

// WriteRegistration prints the active and waiting workers using the configured output format.
func (ow *OutWriter) WriteRegistration(state core.RegistrationState, cfg *contract.Config) error {
	return PrintRegistration(state, cfg)
}
