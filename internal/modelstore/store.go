package modelstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/logger"
)

// Slot names.
const (
	SlotDefault = "default"
	SlotCJK     = "cjk"
)

// ErrUnknownSlot is returned for a slot name other than SlotDefault or
// SlotCJK.
var ErrUnknownSlot = errors.New("unknown model slot")

// DefaultLoadTimeout bounds a load when the caller's context has no deadline.
const DefaultLoadTimeout = 30 * time.Second

type slot struct {
	model atomic.Pointer[crf.Model]
	path  atomic.Pointer[string]
}

// Store serves the current model of each slot to concurrent readers.
// Readers never block: a reload builds the new model off to the side and
// swaps the pointer, so in-flight parses finish on the model they started
// with.
type Store struct {
	slots map[string]*slot

	reloadMu sync.Mutex
	gen      atomic.Uint64

	// LoadTimeout applies to reloads whose context has no deadline.
	LoadTimeout time.Duration
}

// NewStore returns a store whose default slot holds def. The cjk slot
// starts empty.
func NewStore(def *crf.Model) *Store {
	s := &Store{
		slots: map[string]*slot{
			SlotDefault: {},
			SlotCJK:     {},
		},
		LoadTimeout: DefaultLoadTimeout,
	}
	s.slots[SlotDefault].model.Store(def)
	return s
}

// Current returns the model in the default slot.
func (s *Store) Current() *crf.Model {
	return s.slots[SlotDefault].model.Load()
}

// Lookup returns the model in the named slot, if one is loaded.
func (s *Store) Lookup(name string) (*crf.Model, bool) {
	sl, ok := s.slots[name]
	if !ok {
		return nil, false
	}
	m := sl.model.Load()
	return m, m != nil
}

// Generation counts successful swaps since the store was created.
func (s *Store) Generation() uint64 {
	return s.gen.Load()
}

// Path returns the file the slot was last loaded from, or "".
func (s *Store) Path(name string) string {
	sl, ok := s.slots[name]
	if !ok {
		return ""
	}
	if p := sl.path.Load(); p != nil {
		return *p
	}
	return ""
}

// Set installs m in the named slot.
func (s *Store) Set(name string, m *crf.Model) error {
	sl, ok := s.slots[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownSlot, name)
	}
	sl.model.Store(m)
	s.gen.Add(1)
	return nil
}

// Reload loads path into the default slot.
func (s *Store) Reload(ctx context.Context, path string) error {
	return s.ReloadSlot(ctx, SlotDefault, path)
}

// ReloadSlot loads path and swaps it into the named slot. On failure the
// slot keeps its previous model and the error is returned.
func (s *Store) ReloadSlot(ctx context.Context, name, path string) error {
	sl, ok := s.slots[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownSlot, name)
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if _, has := ctx.Deadline(); !has && s.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.LoadTimeout)
		defer cancel()
	}

	start := time.Now()
	m, err := Load(ctx, path)
	if err != nil {
		logger.Warn("model reload failed, keeping previous model",
			"slot", name, "path", path, "error", err)
		return err
	}

	sl.model.Store(m)
	sl.path.Store(&path)
	gen := s.gen.Add(1)
	logger.Info("model loaded",
		"slot", name, "path", path, "model", m.Name(), "version", m.Version(),
		"features", m.FeatureCount(), "generation", gen, "took", time.Since(start))
	return nil
}

// SlotInfo describes a loaded slot.
type SlotInfo struct {
	Slot     string `json:"slot"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Schema   int    `json:"schema"`
	Features int    `json:"features"`
	Weights  int    `json:"weights"`
	Path     string `json:"path,omitempty"`
}

// Info lists the loaded slots in name order.
func (s *Store) Info() []SlotInfo {
	names := make([]string, 0, len(s.slots))
	for n := range s.slots {
		names = append(names, n)
	}
	sort.Strings(names)

	var out []SlotInfo
	for _, n := range names {
		m, ok := s.Lookup(n)
		if !ok {
			continue
		}
		out = append(out, SlotInfo{
			Slot:     n,
			Name:     m.Name(),
			Version:  m.Version(),
			Schema:   m.Schema(),
			Features: m.FeatureCount(),
			Weights:  m.WeightCount(),
			Path:     s.Path(n),
		})
	}
	return out
}
