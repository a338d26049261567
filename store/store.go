// Package store holds the storage boundary of the sync service: an opaque
// keyed object store for durable state and an ephemeral hierarchical store
// for presence. The durable engine itself is a collaborator; the Postgres
// adapter and the in-memory substitute both satisfy the same contract.
package store

import (
	"context"
	"strings"
)

// Unsubscribe releases a listener. Safe to call more than once.
type Unsubscribe func()

// DocumentStore is durable keyed object storage with a change-subscription
// primitive. Update performs an atomic per-object merge:
//
//   - a dotted key ("metadata.last_edit_time") sets a nested field
//   - a map value shallow-merges one level into an existing map field
//   - a nil value deletes the field
//   - anything else replaces the field outright
type DocumentStore interface {
	Get(ctx context.Context, id string) (map[string]any, error)
	Set(ctx context.Context, id string, obj map[string]any) error
	Update(ctx context.Context, id string, partial map[string]any) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	// Subscribe pushes the full object to fn on every change until released.
	Subscribe(id string, fn func(snapshot map[string]any)) Unsubscribe
}

// EventType tags a discrete presence-store event.
type EventType int

const (
	EventAdded EventType = iota
	EventChanged
	EventRemoved
)

// PresenceStore is ephemeral hierarchical key-value storage. Paths are
// slash-separated; On watches the direct children of a parent path and
// replays the currently live children as adds to a new watcher.
//
// ArmRemoveOnDisconnect is the capability boundary for disconnect cleanup:
// every path armed under a session is removed when that session is closed.
// Implementations on stores without native support can substitute a
// heartbeat-plus-sweep mechanism behind the same method.
type PresenceStore interface {
	Set(path string, obj map[string]any)
	Update(path string, partial map[string]any)
	Remove(path string)
	On(parent string, fn func(event EventType, obj map[string]any)) Unsubscribe
	ArmRemoveOnDisconnect(session, path string)
	Disconnect(session string)
}

// Merge applies partial to obj in place per the DocumentStore update rules
// and returns obj. Callers own any locking.
func Merge(obj, partial map[string]any) map[string]any {
	for key, value := range partial {
		if strings.Contains(key, ".") {
			setPath(obj, strings.Split(key, "."), value)
			continue
		}
		if value == nil {
			delete(obj, key)
			continue
		}
		if sub, ok := value.(map[string]any); ok {
			if existing, ok := obj[key].(map[string]any); ok {
				for k, v := range sub {
					if v == nil {
						delete(existing, k)
					} else {
						existing[k] = v
					}
				}
				continue
			}
		}
		obj[key] = value
	}
	return obj
}

func setPath(obj map[string]any, path []string, value any) {
	for _, seg := range path[:len(path)-1] {
		next, ok := obj[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			obj[seg] = next
		}
		obj = next
	}
	leaf := path[len(path)-1]
	if value == nil {
		delete(obj, leaf)
		return
	}
	obj[leaf] = value
}
