package store

import (
	"strings"
	"sync"
)

// Presence is the in-memory PresenceStore. Records are keyed by full
// slash-separated path; watchers observe the direct children of a parent
// path. Disconnect cleanup is driven by the transport closing a session.
type Presence struct {
	mu       sync.Mutex
	records  map[string]map[string]any
	watchers map[string]map[int]func(EventType, map[string]any)
	armed    map[string][]string // session -> paths to remove on disconnect
	nextTok  int
}

func NewPresence() *Presence {
	return &Presence{
		records:  make(map[string]map[string]any),
		watchers: make(map[string]map[int]func(EventType, map[string]any)),
		armed:    make(map[string][]string),
	}
}

func (p *Presence) Set(path string, obj map[string]any) {
	p.mu.Lock()
	_, existed := p.records[path]
	p.records[path] = deepCopy(obj)
	p.mu.Unlock()

	if existed {
		p.emit(path, EventChanged)
	} else {
		p.emit(path, EventAdded)
	}
}

func (p *Presence) Update(path string, partial map[string]any) {
	p.mu.Lock()
	obj, existed := p.records[path]
	if !existed {
		obj = map[string]any{}
		p.records[path] = obj
	}
	Merge(obj, deepCopy(partial))
	p.mu.Unlock()

	if existed {
		p.emit(path, EventChanged)
	} else {
		p.emit(path, EventAdded)
	}
}

func (p *Presence) Remove(path string) {
	p.mu.Lock()
	obj, existed := p.records[path]
	delete(p.records, path)
	p.mu.Unlock()

	if existed {
		p.emitRemoved(path, obj)
	}
}

// On watches the direct children of parent. Currently live children are
// replayed as adds to the new watcher; nothing older is replayed.
func (p *Presence) On(parent string, fn func(event EventType, obj map[string]any)) Unsubscribe {
	prefix := strings.TrimSuffix(parent, "/") + "/"

	p.mu.Lock()
	if p.watchers[prefix] == nil {
		p.watchers[prefix] = make(map[int]func(EventType, map[string]any))
	}
	token := p.nextTok
	p.nextTok++
	p.watchers[prefix][token] = fn

	var live []map[string]any
	for path, obj := range p.records {
		if childOf(path, prefix) {
			live = append(live, deepCopy(obj))
		}
	}
	p.mu.Unlock()

	for _, obj := range live {
		fn(EventAdded, obj)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers[prefix], token)
			p.mu.Unlock()
		})
	}
}

// ArmRemoveOnDisconnect registers path for automatic removal when session
// is closed. Arming the same path twice is harmless.
func (p *Presence) ArmRemoveOnDisconnect(session, path string) {
	p.mu.Lock()
	p.armed[session] = append(p.armed[session], path)
	p.mu.Unlock()
}

// Disconnect removes every path armed under session. Called by the
// transport when it detects the connection is gone.
func (p *Presence) Disconnect(session string) {
	p.mu.Lock()
	paths := p.armed[session]
	delete(p.armed, session)
	p.mu.Unlock()

	for _, path := range paths {
		p.Remove(path)
	}
}

func (p *Presence) emit(path string, event EventType) {
	p.mu.Lock()
	obj, ok := p.records[path]
	if !ok {
		p.mu.Unlock()
		return
	}
	fns, snaps := p.collect(path, obj)
	p.mu.Unlock()

	for i, fn := range fns {
		fn(event, snaps[i])
	}
}

func (p *Presence) emitRemoved(path string, obj map[string]any) {
	p.mu.Lock()
	fns, snaps := p.collect(path, obj)
	p.mu.Unlock()

	for i, fn := range fns {
		fn(EventRemoved, snaps[i])
	}
}

// collect gathers watcher callbacks for path with per-callback copies.
// Caller holds the lock.
func (p *Presence) collect(path string, obj map[string]any) ([]func(EventType, map[string]any), []map[string]any) {
	var fns []func(EventType, map[string]any)
	var snaps []map[string]any
	for prefix, watchers := range p.watchers {
		if !childOf(path, prefix) {
			continue
		}
		for _, fn := range watchers {
			fns = append(fns, fn)
			snaps = append(snaps, deepCopy(obj))
		}
	}
	return fns, snaps
}

func childOf(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return !strings.Contains(path[len(prefix):], "/")
}
