package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

type memRecord struct {
	seq     int64
	version int64
	data    []byte
}

type memCollection struct {
	nextSeq int64
	clock   int64 // hands out versions; survives deletes
	records map[string]*memRecord
}

// MemoryBackend keeps records in process memory. It backs tests and the
// ephemeral "memory" store mode; nothing survives a restart.
type MemoryBackend struct {
	mu          sync.Mutex
	collections map[string]*memCollection
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memCollection)}
}

// collection must be called with mu held.
func (m *MemoryBackend) collection(c Collection) *memCollection {
	mc, ok := m.collections[c.Index]
	if !ok {
		mc = &memCollection{records: make(map[string]*memRecord)}
		m.collections[c.Index] = mc
	}
	return mc
}

func (m *MemoryBackend) Exists(_ context.Context, c Collection, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.collection(c).records[key]
	return ok, nil
}

func (m *MemoryBackend) Get(_ context.Context, c Collection, key string) (Versioned, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.collection(c).records[key]
	if !ok {
		return Versioned{}, ErrNotFound
	}
	return Versioned{Data: slices.Clone(rec.data), Version: rec.version}, nil
}

func (m *MemoryBackend) Insert(_ context.Context, c Collection, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc := m.collection(c)
	if _, ok := mc.records[key]; ok {
		return ErrAlreadyExists
	}
	mc.nextSeq++
	mc.clock++
	mc.records[key] = &memRecord{seq: mc.nextSeq, version: mc.clock, data: slices.Clone(data)}
	return nil
}

func (m *MemoryBackend) CompareAndSwap(_ context.Context, c Collection, key string, version int64, data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc := m.collection(c)
	rec, ok := mc.records[key]
	if !ok {
		return false, ErrNotFound
	}
	if rec.version != version {
		return false, nil
	}
	mc.clock++
	rec.version = mc.clock
	rec.data = slices.Clone(data)
	return true, nil
}

func (m *MemoryBackend) Delete(_ context.Context, c Collection, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc := m.collection(c)
	if _, ok := mc.records[key]; !ok {
		return false, nil
	}
	delete(mc.records, key)
	return true, nil
}

func (m *MemoryBackend) List(_ context.Context, c Collection) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := make([]*memRecord, 0, len(m.collection(c).records))
	for _, rec := range m.collection(c).records {
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, func(a, b *memRecord) int { return cmp.Compare(a.seq, b.seq) })

	out := make([][]byte, len(recs))
	for i, rec := range recs {
		out[i] = slices.Clone(rec.data)
	}
	return out, nil
}

func (m *MemoryBackend) Count(_ context.Context, c Collection) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return int64(len(m.collection(c).records)), nil
}
