package iocache

import (
	"sync"

	"github.com/huangsam/digitaldiary/internal/contract"
)

// CacheStoreManager holds the configured CacheStorage instance.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointer during initialization
	storage      contract.CacheStorage
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// GetCacheStorage returns the cache storage.
func (mgr *CacheStoreManager) GetCacheStorage() contract.CacheStorage {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.storage
}
