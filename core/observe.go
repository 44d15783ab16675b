package core

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// ObserveFunc reacts to an attribute change. newValue carries the value just
// set; oldValue carries the prior value, or Nothing on the initial
// notification fired by Attach. Returning an error aborts the triggering
// SetAttr; observer callbacks are expected to be correct by construction, so
// errors propagate rather than being swallowed.
type ObserveFunc func(newValue, oldValue any) error

// Observer subscribes to attribute changes on an Attrs store. Observations
// returns an explicit registration table mapping watched attribute names to
// callbacks; the table is read once at attach time.
type Observer interface {
	ObserverID() string
	Observations() map[string]ObserveFunc
}

// BaseObserver provides a stable identity for observer implementations.
// Embed it and implement Observations.
type BaseObserver struct {
	id string
}

// NewBaseObserver creates a BaseObserver with a generated unique identity.
func NewBaseObserver() BaseObserver {
	return BaseObserver{id: uuid.NewString()}
}

// ObserverID returns the unique identity of this observer.
func (b BaseObserver) ObserverID() string { return b.id }

type subscription struct {
	observerID string
	fn         ObserveFunc
}

// Attach subscribes every attribute in the observer's registration table.
// Attaching the same observer twice for an attribute is a no-op, so a value
// change never notifies it more than once. When init is true each callback is
// fired immediately with the attribute's current value as new and Nothing as
// old, letting observers initialize without special-casing first run.
func (a *Attrs) Attach(obs Observer, init bool) error {
	table := obs.Observations()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	// Deterministic init order across attributes.
	sort.Strings(names)
	for _, name := range names {
		if err := a.AttachAttr(obs, name, table[name], init); err != nil {
			return err
		}
	}
	return nil
}

// AttachAttr subscribes a single attribute. Duplicate subscriptions for the
// same observer and attribute are ignored.
func (a *Attrs) AttachAttr(obs Observer, name string, fn ObserveFunc, init bool) error {
	id := obs.ObserverID()
	watched, ok := a.owners[id]
	if !ok {
		watched = make(map[string]struct{})
		a.owners[id] = watched
	}
	if _, dup := watched[name]; dup {
		return nil
	}
	watched[name] = struct{}{}
	a.subs[name] = append(a.subs[name], subscription{observerID: id, fn: fn})
	if init {
		if err := fn(a.GetAttr(name), Nothing); err != nil {
			return fmt.Errorf("initial notification for %q on %s failed: %w", name, a.name, err)
		}
	}
	return nil
}

// Detach removes every subscription held by the observer.
func (a *Attrs) Detach(obs Observer) {
	id := obs.ObserverID()
	watched, ok := a.owners[id]
	if !ok {
		return
	}
	for name := range watched {
		a.detachAttr(id, name)
	}
	delete(a.owners, id)
}

// DetachAttr removes a single attribute subscription for the observer.
func (a *Attrs) DetachAttr(obs Observer, name string) {
	id := obs.ObserverID()
	if watched, ok := a.owners[id]; ok {
		delete(watched, name)
		if len(watched) == 0 {
			delete(a.owners, id)
		}
	}
	a.detachAttr(id, name)
}

// detachAttr builds a fresh subscription slice so that a fan-out already in
// flight keeps iterating its own snapshot unchanged.
func (a *Attrs) detachAttr(observerID, name string) {
	subs := a.subs[name]
	kept := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.observerID != observerID {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(a.subs, name)
	} else {
		a.subs[name] = kept
	}
}

// publish fans out a change notification in subscription order. Notification
// fires only when the new value is not equal to the old value; equality is
// reflect.DeepEqual so that rebuilt-but-identical maps do not retrigger
// observers.
func (a *Attrs) publish(name string, newValue, oldValue any) error {
	subs, ok := a.subs[name]
	if !ok || reflect.DeepEqual(newValue, oldValue) {
		return nil
	}
	for _, s := range subs {
		if err := s.fn(newValue, oldValue); err != nil {
			return fmt.Errorf("observer notification for %q on %s failed: %w", name, a.name, err)
		}
	}
	return nil
}
