// Package faultinject adapts this codebase's chaos-testing fault
// injector to the cluster's 2PC path: instead of disk/process/network
// faults it targets the three ways spec.md's inject-2pc-error
// administrative operation can perturb a distributed commit — drop a
// participant's vote, delay a PREPARE, or force an ABORT.
package faultinject

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies a 2PC fault an administrator can inject.
type Kind int

const (
	KindNone Kind = iota
	// KindDropVote simulates a participant's READY/ABORTED vote never
	// arriving at the coordinator (as if lost on the arbiter socket).
	KindDropVote
	// KindDelayPrepare holds up a coordinator's PREPARE broadcast by a
	// configured duration, to exercise the prepare-timeout path.
	KindDelayPrepare
	// KindForceAbort makes a coordinator abort a transaction that would
	// otherwise have gone on to PREPARE successfully.
	KindForceAbort
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDropVote:
		return "drop-vote"
	case KindDelayPrepare:
		return "delay-prepare"
	case KindForceAbort:
		return "force-abort"
	default:
		return "unknown"
	}
}

// Config configures one fault kind.
type Config struct {
	Kind        Kind
	Enabled     bool
	Probability float64 // 0.0 to 1.0: chance the fault fires when checked
	Delay       time.Duration
	Message     string
}

// Event records one fault-injection decision, for admin-surface
// diagnostics (dump-lock-graph's sibling for 2PC faults).
type Event struct {
	Timestamp time.Time
	Kind      Kind
	Message   string
	Triggered bool
}

// EventCallback is notified each time a configured fault fires.
type EventCallback func(Event)

// Injector holds the administrator-configured fault set for one node's
// 2PC path (spec.md §6: inject-2pc-error).
type Injector struct {
	mu           sync.RWMutex
	enabled      bool
	faults       map[Kind]*Config
	triggerCount map[Kind]*int64
	rng          *rand.Rand
	callbacks    []EventCallback
}

// NewInjector builds a disabled injector. seed == 0 seeds from the
// wall clock.
func NewInjector(seed int64) *Injector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Injector{
		faults:       make(map[Kind]*Config),
		triggerCount: make(map[Kind]*int64),
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// Enable turns on fault injection cluster-wide for this node.
func (inj *Injector) Enable() {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.enabled = true
}

// Disable turns off fault injection; configured faults are retained.
func (inj *Injector) Disable() {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.enabled = false
}

// IsEnabled reports whether fault injection is currently active.
func (inj *Injector) IsEnabled() bool {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	return inj.enabled
}

// ConfigureFault installs or replaces the configuration for one kind.
func (inj *Injector) ConfigureFault(cfg Config) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	c := cfg
	inj.faults[cfg.Kind] = &c
}

// EnableFault is a shorthand for ConfigureFault with just a
// probability, for the common "fire every time" (probability 1) case
// the admin API exposes.
func (inj *Injector) EnableFault(kind Kind, probability float64) {
	inj.ConfigureFault(Config{Kind: kind, Enabled: true, Probability: probability})
}

// DisableFault turns off one configured fault kind without discarding
// its configuration.
func (inj *Injector) DisableFault(kind Kind) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	if c, ok := inj.faults[kind]; ok {
		c.Enabled = false
	}
}

// AddEventCallback registers a callback notified each time a fault
// fires, in the order configured. A ShouldInject call that does not
// fire notifies no callback.
func (inj *Injector) AddEventCallback(cb EventCallback) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.callbacks = append(inj.callbacks, cb)
}

// ShouldInject rolls the dice for kind: it returns false immediately if
// injection is disabled globally or for this kind, otherwise fires
// with the configured probability.
func (inj *Injector) ShouldInject(kind Kind) bool {
	inj.mu.RLock()
	enabled := inj.enabled
	cfg, ok := inj.faults[kind]
	inj.mu.RUnlock()

	if !enabled || !ok || !cfg.Enabled {
		return false
	}
	if inj.rng.Float64() > cfg.Probability {
		return false
	}

	inj.bumpTriggerCount(kind)
	inj.notify(Event{Timestamp: time.Now(), Kind: kind, Message: cfg.Message, Triggered: true})
	return true
}

// Delay returns the configured delay for kind (zero if unconfigured).
func (inj *Injector) Delay(kind Kind) time.Duration {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	if c, ok := inj.faults[kind]; ok {
		return c.Delay
	}
	return 0
}

// GetTriggerCount returns how many times kind has fired.
func (inj *Injector) GetTriggerCount(kind Kind) int64 {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	if c, ok := inj.triggerCount[kind]; ok {
		return atomic.LoadInt64(c)
	}
	return 0
}

// Reset clears every trigger count, leaving configuration untouched.
func (inj *Injector) Reset() {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.triggerCount = make(map[Kind]*int64)
}

func (inj *Injector) bumpTriggerCount(kind Kind) {
	inj.mu.Lock()
	c, ok := inj.triggerCount[kind]
	if !ok {
		var zero int64
		c = &zero
		inj.triggerCount[kind] = c
	}
	inj.mu.Unlock()
	atomic.AddInt64(c, 1)
}

func (inj *Injector) notify(ev Event) {
	inj.mu.RLock()
	cbs := make([]EventCallback, len(inj.callbacks))
	copy(cbs, inj.callbacks)
	inj.mu.RUnlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// String renders every configured fault's trigger count, for the
// dump-lock-graph-style admin debug surface.
func (inj *Injector) String() string {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	s := fmt.Sprintf("enabled=%v", inj.enabled)
	for kind, cfg := range inj.faults {
		count := int64(0)
		if c, ok := inj.triggerCount[kind]; ok {
			count = atomic.LoadInt64(c)
		}
		s += fmt.Sprintf("; %s(enabled=%v p=%.2f)=%d", kind, cfg.Enabled, cfg.Probability, count)
	}
	return s
}
