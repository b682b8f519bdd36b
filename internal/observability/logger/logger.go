// Package logger provides a singleton zap logger with context-based scoping.
//
// Initialise once in main with Init, then use L() anywhere or From(ctx) in
// request-scoped code. Middlewares inject a scoped logger carrying
// request_id and session_id so flow events are correlated end to end.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	global *zap.Logger
	once   sync.Once
	mu     sync.RWMutex
)

// Init builds the global logger. Safe to call once; later calls are ignored.
func Init(cfg Config) {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		global = build(cfg)
	})
}

// L returns the global logger, falling back to a no-op logger when Init was
// never called (keeps library code and tests from nil-checking).
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return zap.NewNop()
	}
	return global
}

// Sync flushes buffered entries. Call via defer in main.
func Sync() {
	_ = L().Sync()
}
