package host

import "errors"

// EntityID is an opaque handle naming a unit of schedulable work
// (a document, a buffer, a file under watch). Hosts assign them;
// the scheduler never interprets the value.
type EntityID int64

// None marks "no entity" (e.g. host has no current focus).
const None EntityID = -1

// ErrInvalidEntity is returned by hosts for queries against an entity
// that no longer exists. Callers treat it as "not eligible", not as a
// failure: entity teardown racing a pending trigger is expected.
var ErrInvalidEntity = errors.New("host: invalid entity")

// Host is the read/write surface the scheduler needs from its
// environment. All queries reflect live state at call time; the
// scheduler never caches the answers.
//
// Implementations must be safe for calls referencing destroyed
// entities: IsValid returns false, the other queries return zero
// values, and WriteEntity returns ErrInvalidEntity.
type Host interface {
	// CurrentEntity returns the entity in focus, or None.
	CurrentEntity() EntityID
	// ListEntities snapshots the known entities. Order is unspecified.
	ListEntities() []EntityID

	IsValid(id EntityID) bool
	IsModified(id EntityID) bool
	Name(id EntityID) string
	HasErrors(id EntityID) bool
	FileExists(id EntityID) bool
	Filetype(id EntityID) string

	// InBlockingEdit reports whether the entity is in an edit state the
	// host disallows writing from (e.g. a pending multi-step edit).
	InBlockingEdit(id EntityID) bool

	// WriteEntity persists the entity. Single attempt, no retries.
	WriteEntity(id EntityID) error
}

// Subscription is the handle for a group of event registrations,
// passed back to Events.UnsubscribeAll.
type Subscription interface{}

// Events is the host's event wiring. Handlers receive the entity the
// event targeted (None when the host cannot attribute one).
type Events interface {
	// Subscribe registers handler for every listed event class and
	// returns a group handle covering all of them.
	Subscribe(classes []string, handler func(EntityID)) (Subscription, error)
	// UnsubscribeAll tears down a previously registered group.
	// Safe to call with a handle that is already torn down.
	UnsubscribeAll(sub Subscription)
}
