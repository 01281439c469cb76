// Package auth implements the chat allow-list.
package auth

import "sync/atomic"

// WildcardID in the allow-list grants access to every chat id.
const WildcardID int64 = 0

// List is an immutable allow-list of chat ids (users or groups).
// A list containing WildcardID allows everyone; an empty list allows no one.
type List struct {
	ids map[int64]struct{}
	all bool
}

func NewList(ids []int64) List {
	l := List{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		if id == WildcardID {
			l.all = true
		}
		l.ids[id] = struct{}{}
	}
	return l
}

func (l List) Allowed(id int64) bool {
	if l.all {
		return true
	}
	_, ok := l.ids[id]
	return ok
}

// Registry holds the current list and supports an atomic swap when the
// config file is hot-reloaded.
type Registry struct {
	v atomic.Value // stores List
}

func NewRegistry(l List) *Registry {
	r := &Registry{}
	r.v.Store(l)
	return r
}

func (r *Registry) Swap(l List) { r.v.Store(l) }

func (r *Registry) Allowed(id int64) bool {
	l, _ := r.v.Load().(List)
	return l.Allowed(id)
}
