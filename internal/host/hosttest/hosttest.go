// Package hosttest provides a scripted in-memory host for scheduler
// tests.
package hosttest

import (
	"sync"

	"autosaved/internal/host"
)

// Entity is the scripted state behind one entity id.
type Entity struct {
	Valid    bool
	Modified bool
	Name     string
	Errors   bool
	Exists   bool
	Filetype string
	Blocking bool

	WriteErr error
	Writes   int
}

// Host implements host.Host over a mutable entity table.
type Host struct {
	mu       sync.Mutex
	Current  host.EntityID
	Entities map[host.EntityID]*Entity
}

func New() *Host {
	return &Host{Current: host.None, Entities: map[host.EntityID]*Entity{}}
}

// Add registers a well-formed saveable entity and returns it for
// further scripting.
func (h *Host) Add(id host.EntityID, name string) *Entity {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := &Entity{Valid: true, Modified: true, Name: name, Exists: true, Filetype: "text"}
	h.Entities[id] = e
	return e
}

// Destroy drops the entity as a host would on deletion.
func (h *Host) Destroy(id host.EntityID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.Entities, id)
	if h.Current == id {
		h.Current = host.None
	}
}

func (h *Host) get(id host.EntityID) *Entity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Entities[id]
}

func (h *Host) CurrentEntity() host.EntityID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Current
}

func (h *Host) ListEntities() []host.EntityID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]host.EntityID, 0, len(h.Entities))
	for id := range h.Entities {
		out = append(out, id)
	}
	return out
}

func (h *Host) IsValid(id host.EntityID) bool {
	e := h.get(id)
	return e != nil && e.Valid
}

func (h *Host) IsModified(id host.EntityID) bool {
	e := h.get(id)
	return e != nil && e.Modified
}

func (h *Host) Name(id host.EntityID) string {
	if e := h.get(id); e != nil {
		return e.Name
	}
	return ""
}

func (h *Host) HasErrors(id host.EntityID) bool {
	e := h.get(id)
	return e != nil && e.Errors
}

func (h *Host) FileExists(id host.EntityID) bool {
	e := h.get(id)
	return e != nil && e.Exists
}

func (h *Host) Filetype(id host.EntityID) string {
	if e := h.get(id); e != nil {
		return e.Filetype
	}
	return ""
}

func (h *Host) InBlockingEdit(id host.EntityID) bool {
	e := h.get(id)
	return e != nil && e.Blocking
}

func (h *Host) WriteEntity(id host.EntityID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.Entities[id]
	if e == nil || !e.Valid {
		return host.ErrInvalidEntity
	}
	e.Writes++
	if e.WriteErr != nil {
		return e.WriteErr
	}
	e.Modified = false
	return nil
}

// ---- events ----

type group struct {
	classes map[string]struct{}
	handler func(host.EntityID)
	active  bool
}

// Events implements host.Events with synchronous in-test delivery.
type Events struct {
	mu     sync.Mutex
	groups []*group
}

func NewEvents() *Events { return &Events{} }

func (ev *Events) Subscribe(classes []string, handler func(host.EntityID)) (host.Subscription, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	g := &group{classes: map[string]struct{}{}, handler: handler, active: true}
	for _, c := range classes {
		g.classes[c] = struct{}{}
	}
	ev.groups = append(ev.groups, g)
	return g, nil
}

func (ev *Events) UnsubscribeAll(sub host.Subscription) {
	g, ok := sub.(*group)
	if !ok {
		return
	}
	ev.mu.Lock()
	g.active = false
	ev.mu.Unlock()
}

// Emit synchronously invokes every active handler subscribed to class.
func (ev *Events) Emit(class string, id host.EntityID) {
	ev.mu.Lock()
	var handlers []func(host.EntityID)
	for _, g := range ev.groups {
		if !g.active {
			continue
		}
		if _, ok := g.classes[class]; ok {
			handlers = append(handlers, g.handler)
		}
	}
	ev.mu.Unlock()

	for _, h := range handlers {
		h(id)
	}
}

// ActiveGroups counts subscriptions not yet torn down.
func (ev *Events) ActiveGroups() int {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	n := 0
	for _, g := range ev.groups {
		if g.active {
			n++
		}
	}
	return n
}
