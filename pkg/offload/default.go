package offload

import (
	"sync"

	"github.com/jzx17/pipeoffload/internal/logger"
	"github.com/jzx17/pipeoffload/pkg/config"
)

var (
	defaultMu         sync.RWMutex
	defaultDispatcher *Dispatcher
)

// Default returns the process-wide dispatcher. Until SetDefault is called it has no
// accelerator, so every dispatch reverts. Its kernel cache is bounded by the loaded
// cache_capacity setting.
func Default() *Dispatcher {
	defaultMu.RLock()
	d := defaultDispatcher
	defaultMu.RUnlock()
	if d != nil {
		return d
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultDispatcher == nil {
		defaultDispatcher = New(WithCapacity(defaultCapacity()))
	}
	return defaultDispatcher
}

func defaultCapacity() int {
	cfg, err := config.Load()
	if err != nil {
		logger.Global().WithComponent("offload").Warn("invalid configuration, kernel cache is unbounded",
			logger.Fields("error", err.Error()))
		return config.Default().CacheCapacity
	}
	return cfg.CacheCapacity
}

// SetDefault replaces the process-wide dispatcher and its kernel cache. Passing nil makes
// the next Default call build a fresh dispatcher from the current configuration.
func SetDefault(d *Dispatcher) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultDispatcher = d
}
