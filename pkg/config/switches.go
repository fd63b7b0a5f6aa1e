package config

import (
	"sync"
	"sync/atomic"
)

// Switches are the process-wide runtime toggles consulted on every dispatch
type Switches struct {
	offload     atomic.Bool
	neverRevert atomic.Bool
}

// NewSwitches creates switches initialized from cfg
func NewSwitches(cfg *Config) *Switches {
	s := &Switches{}
	if cfg != nil {
		s.offload.Store(cfg.Offload)
		s.neverRevert.Store(cfg.NeverRevert)
	}
	return s
}

// Offload reports whether eligible pipelines should try the accelerator
func (s *Switches) Offload() bool {
	return s.offload.Load()
}

// SetOffload changes the offload switch
func (s *Switches) SetOffload(on bool) {
	s.offload.Store(on)
}

// NeverRevert reports whether fallback to baseline is forbidden
func (s *Switches) NeverRevert() bool {
	return s.neverRevert.Load()
}

// SetNeverRevert changes the strict-mode switch
func (s *Switches) SetNeverRevert(on bool) {
	s.neverRevert.Store(on)
}

var (
	globalOnce sync.Once
	global     *Switches
)

// Global returns the process-wide switches, read from the environment on first use.
// An invalid environment leaves both switches off.
func Global() *Switches {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		global = NewSwitches(cfg)
	})
	return global
}
