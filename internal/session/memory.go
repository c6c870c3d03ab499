package session

import (
	"context"
	"sync"
	"time"
)

var _ Registry = (*MemoryRegistry)(nil)

type MemoryRegistry struct {
	mu        sync.Mutex
	byValue   map[string]Record
	bySubject map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byValue:   make(map[string]Record),
		bySubject: make(map[string]string),
	}
}

func (m *MemoryRegistry) Replace(_ context.Context, rec Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	superseded := m.removeSubject(rec.SubjectID, rec.CreatedAt)
	m.put(rec)
	return superseded, nil
}

func (m *MemoryRegistry) Rotate(_ context.Context, presented string, next Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byValue[presented]
	if !ok || current.SubjectID != next.SubjectID || !current.liveAt(next.CreatedAt) {
		return ErrNotFound
	}
	if m.bySubject[next.SubjectID] != presented {
		return ErrNotFound
	}

	m.removeSubject(next.SubjectID, next.CreatedAt)
	m.put(next)
	return nil
}

func (m *MemoryRegistry) FindByValue(_ context.Context, value string, now time.Time) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byValue[value]
	if !ok || !rec.liveAt(now) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryRegistry) DeleteByValue(_ context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byValue[value]
	if !ok {
		return nil
	}
	delete(m.byValue, value)
	if m.bySubject[rec.SubjectID] == value {
		delete(m.bySubject, rec.SubjectID)
	}
	return nil
}

func (m *MemoryRegistry) DeleteBySubject(_ context.Context, subjectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.bySubject[subjectID]
	if !ok {
		return 0, nil
	}
	delete(m.bySubject, subjectID)
	delete(m.byValue, value)
	return 1, nil
}

func (m *MemoryRegistry) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for value, rec := range m.byValue {
		if rec.liveAt(now) {
			continue
		}
		delete(m.byValue, value)
		if m.bySubject[rec.SubjectID] == value {
			delete(m.bySubject, rec.SubjectID)
		}
		removed++
	}
	return removed, nil
}

// Len reports the number of stored records, live or not.
func (m *MemoryRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byValue)
}

// removeSubject must be called with mu held.
func (m *MemoryRegistry) removeSubject(subjectID string, now time.Time) int {
	value, ok := m.bySubject[subjectID]
	if !ok {
		return 0
	}
	delete(m.bySubject, subjectID)

	rec, ok := m.byValue[value]
	if !ok {
		return 0
	}
	delete(m.byValue, value)
	if rec.liveAt(now) {
		return 1
	}
	return 0
}

func (m *MemoryRegistry) put(rec Record) {
	m.byValue[rec.TokenValue] = rec
	m.bySubject[rec.SubjectID] = rec.TokenValue
}
