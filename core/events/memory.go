package events

import (
	"sync"

	"filpledge/core/types"
)

// Recorder retains a bounded window of emitted events in memory so the RPC
// layer can serve a recent event feed without an external indexer. When the
// buffer is full the oldest entries are dropped.
type Recorder struct {
	mu     sync.RWMutex
	limit  int
	buffer []*types.Event
}

type payloadEvent interface {
	Event() *types.Event
}

// NewRecorder constructs a Recorder keeping at most limit events. A
// non-positive limit falls back to 1024.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 1024
	}
	return &Recorder{limit: limit}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	var payload *types.Event
	if p, ok := evt.(payloadEvent); ok {
		payload = p.Event()
	}
	if payload == nil {
		payload = &types.Event{Type: evt.EventType()}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, payload)
	if overflow := len(r.buffer) - r.limit; overflow > 0 {
		r.buffer = append([]*types.Event(nil), r.buffer[overflow:]...)
	}
}

// Events returns a copy of the retained events, oldest first.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Event, len(r.buffer))
	for i, evt := range r.buffer {
		out[i] = evt.Clone()
	}
	return out
}
