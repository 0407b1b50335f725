package model

import "sync"

// Global registry instance and initialization guard.
var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Global returns the singleton registry instance, creating a default
// registry on first call if none was initialized via InitGlobal.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewDefaultRegistry()
	})
	return globalRegistry
}

// InitGlobal initializes the global registry with a custom instance. Must
// be called before any call to Global() to take effect. Safe for
// concurrent use but only the first call has any effect.
func InitGlobal(r *Registry) {
	globalOnce.Do(func() {
		globalRegistry = r
	})
}

// ResetGlobal resets the global registry. Not safe for concurrent use;
// tests only.
func ResetGlobal() {
	globalOnce = sync.Once{}
	globalRegistry = nil
}
