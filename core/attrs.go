package core

import (
	"sort"
	"strings"
)

// AttrStore is the contract for named attribute access used by scoped
// assignment and context checks. Reading an unset attribute returns Nothing,
// never an error; SetAttr may return an error when an attached observer
// rejects the new value.
type AttrStore interface {
	GetAttr(name string) any
	SetAttr(name string, value any) error
	DelAttr(name string) error
	HasAttr(name string) bool
	AttrNames() []string
}

// Attrs is the map backed AttrStore used for every context namespace. It is
// observable: observers attached via Attach are notified when a watched
// attribute changes value. Attrs is owned by a single goroutine per the
// engine's concurrency model and performs no internal locking.
type Attrs struct {
	name   string
	values map[string]any
	subs   map[string][]subscription
	owners map[string]map[string]struct{} // observer id -> watched attr names
}

// NewAttrs creates an empty attribute store. The name is used purely for
// diagnostics (log output, error messages).
func NewAttrs(name string) *Attrs {
	return &Attrs{
		name:   name,
		values: make(map[string]any),
		subs:   make(map[string][]subscription),
		owners: make(map[string]map[string]struct{}),
	}
}

// Name returns the diagnostic name of the store.
func (a *Attrs) Name() string { return a.name }

// GetAttr returns the stored value or Nothing when the attribute is unset.
func (a *Attrs) GetAttr(name string) any {
	if v, ok := a.values[name]; ok {
		return v
	}
	return Nothing
}

// SetAttr stores value under name. When the new value differs from the old
// one (reflect.DeepEqual), subscribed observers are notified in subscription
// order; an observer error aborts remaining fan-out and is returned to the
// caller with the attribute already updated.
func (a *Attrs) SetAttr(name string, value any) error {
	old := a.GetAttr(name)
	a.values[name] = value
	return a.publish(name, value, old)
}

// DelAttr removes an attribute, restoring the "never set" state. Observers
// are notified with Nothing as the new value; an observer error aborts
// remaining fan-out and is returned with the attribute already removed.
func (a *Attrs) DelAttr(name string) error {
	old, ok := a.values[name]
	if !ok {
		return nil
	}
	delete(a.values, name)
	return a.publish(name, Nothing, old)
}

// HasAttr reports whether the attribute was explicitly set.
func (a *Attrs) HasAttr(name string) bool {
	_, ok := a.values[name]
	return ok
}

// AttrNames returns the sorted names of all set attributes.
func (a *Attrs) AttrNames() []string {
	names := make([]string, 0, len(a.values))
	for name := range a.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Update sets every pair from values, stopping at the first observer error.
func (a *Attrs) Update(values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := a.SetAttr(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// CheckPath resolves a dotted attribute path against a store and reports
// whether every segment is present and not Nothing. Intermediate segments may
// themselves be AttrStore values.
func CheckPath(store AttrStore, path string) bool {
	segments := strings.Split(path, ".")
	var current any = store
	for _, seg := range segments {
		s, ok := current.(AttrStore)
		if !ok {
			return false
		}
		current = s.GetAttr(seg)
		if IsNothing(current) {
			return false
		}
	}
	return true
}
