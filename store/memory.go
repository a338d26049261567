package store

import (
	"context"
	"encoding/json"
	"sync"

	"scoresync/pkg/errs"
)

// Memory is the in-memory DocumentStore used for development and tests.
// Snapshots handed to subscribers are deep copies, so callbacks can never
// observe a half-applied merge.
type Memory struct {
	mu      sync.Mutex
	objects map[string]map[string]any
	subs    map[string]map[int]func(map[string]any)
	nextSub int
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]map[string]any),
		subs:    make(map[string]map[int]func(map[string]any)),
	}
}

func (m *Memory) Get(_ context.Context, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[id]
	if !ok {
		return nil, errs.NotFound("object " + id)
	}
	return deepCopy(obj), nil
}

func (m *Memory) Set(_ context.Context, id string, obj map[string]any) error {
	m.mu.Lock()
	m.objects[id] = deepCopy(obj)
	m.mu.Unlock()
	m.notify(id)
	return nil
}

func (m *Memory) Update(_ context.Context, id string, partial map[string]any) error {
	m.mu.Lock()
	obj, ok := m.objects[id]
	if !ok {
		m.mu.Unlock()
		return errs.NotFound("object " + id)
	}
	Merge(obj, deepCopy(partial))
	m.mu.Unlock()
	m.notify(id)
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.objects, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[id]
	return ok, nil
}

func (m *Memory) Subscribe(id string, fn func(snapshot map[string]any)) Unsubscribe {
	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[int]func(map[string]any))
	}
	token := m.nextSub
	m.nextSub++
	m.subs[id][token] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[id], token)
			m.mu.Unlock()
		})
	}
}

func (m *Memory) notify(id string) {
	m.mu.Lock()
	obj, ok := m.objects[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	var fns []func(map[string]any)
	var snaps []map[string]any
	for _, fn := range m.subs[id] {
		fns = append(fns, fn)
		snaps = append(snaps, deepCopy(obj))
	}
	m.mu.Unlock()

	// Deliver outside the lock. Ordering across concurrent writers is not
	// guaranteed; consumers filter on last_edit_time.
	for i, fn := range fns {
		fn(snaps[i])
	}
}

func deepCopy(obj map[string]any) map[string]any {
	raw, err := json.Marshal(obj)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
