package main

import (
	"sort"
	"sync"
	"time"

	"camrelay/internal/proto"
)

// memoryStatusStore is the default statusStore: everything lives in process.
type memoryStatusStore struct {
	mu      sync.Mutex
	sources map[string]*proto.SourceStatus
	ready   bool
	closing bool
}

func newMemoryStatusStore(names []string) *memoryStatusStore {
	m := &memoryStatusStore{sources: make(map[string]*proto.SourceStatus)}
	now := time.Now().UTC()
	for _, n := range names {
		m.sources[n] = &proto.SourceStatus{Name: n, State: proto.StateIdle, UpdatedAt: now}
	}
	return m
}

var _ statusStore = (*memoryStatusStore)(nil)

// get returns the entry for name, creating it for sources not known at
// startup. Callers hold mu.
func (m *memoryStatusStore) get(name string) *proto.SourceStatus {
	st, ok := m.sources[name]
	if !ok {
		st = &proto.SourceStatus{Name: name, State: proto.StateIdle}
		m.sources[name] = st
	}
	return st
}

func (m *memoryStatusStore) SessionState(source, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.get(source)
	if state == proto.StateConnecting {
		st.Sessions++
	}
	st.State = state
	st.UpdatedAt = time.Now().UTC()
}

func (m *memoryStatusStore) Viewers(source string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.get(source)
	st.Viewers = n
	st.UpdatedAt = time.Now().UTC()
}

func (m *memoryStatusStore) Bytes(source string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.get(source)
	st.BytesRelayed += int64(n)
	st.UpdatedAt = time.Now().UTC()
}

func (m *memoryStatusStore) snapshot() []proto.SourceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]proto.SourceStatus, 0, len(m.sources))
	for _, st := range m.sources {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memoryStatusStore) setReady(ready bool)     { m.mu.Lock(); m.ready = ready; m.mu.Unlock() }
func (m *memoryStatusStore) setClosing(closing bool) { m.mu.Lock(); m.closing = closing; m.mu.Unlock() }
func (m *memoryStatusStore) isReady() bool           { m.mu.Lock(); defer m.mu.Unlock(); return m.ready }
func (m *memoryStatusStore) isClosing() bool         { m.mu.Lock(); defer m.mu.Unlock(); return m.closing }
