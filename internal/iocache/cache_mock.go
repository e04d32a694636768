package iocache

import (
	"context"

	"github.com/huangsam/digitaldiary/internal/contract"
	"github.com/huangsam/digitaldiary/schema"
	"github.com/stretchr/testify/mock"
)

// MockCacheManager is a mock implementation of CacheManager for testing.
type MockCacheManager struct {
	mock.Mock
}

var _ contract.CacheManager = &MockCacheManager{} // Compile-time check

// GetCacheStorage implements the CacheManager interface.
func (m *MockCacheManager) GetCacheStorage() contract.CacheStorage {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.CacheStorage)
	return store
}

// MockCacheStorage is a mock implementation of CacheStorage for testing.
type MockCacheStorage struct {
	mock.Mock
}

var _ contract.CacheStorage = &MockCacheStorage{} // Compile-time check

// Keys implements the CacheStorage interface.
func (m *MockCacheStorage) Keys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

// Delete implements the CacheStorage interface.
func (m *MockCacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

// Match implements the CacheStorage interface.
func (m *MockCacheStorage) Match(ctx context.Context, name, method, url string) (schema.CachedEntry, error) {
	args := m.Called(ctx, name, method, url)
	entry, _ := args.Get(0).(schema.CachedEntry)
	return entry, args.Error(1)
}

// Put implements the CacheStorage interface.
func (m *MockCacheStorage) Put(ctx context.Context, entry schema.CachedEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// PutAll implements the CacheStorage interface.
func (m *MockCacheStorage) PutAll(ctx context.Context, name string, entries []schema.CachedEntry) error {
	args := m.Called(ctx, name, entries)
	return args.Error(0)
}

// Entries implements the CacheStorage interface.
func (m *MockCacheStorage) Entries(ctx context.Context, name string) ([]schema.CachedEntry, error) {
	args := m.Called(ctx, name)
	entries, _ := args.Get(0).([]schema.CachedEntry)
	return entries, args.Error(1)
}

// Generations implements the CacheStorage interface.
func (m *MockCacheStorage) Generations(ctx context.Context) ([]schema.GenerationInfo, error) {
	args := m.Called(ctx)
	infos, _ := args.Get(0).([]schema.GenerationInfo)
	return infos, args.Error(1)
}

// GetStatus implements the CacheStorage interface.
func (m *MockCacheStorage) GetStatus(ctx context.Context) (schema.CacheStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(schema.CacheStatus)
	return status, args.Error(1)
}

// Close implements the CacheStorage interface.
func (m *MockCacheStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}
