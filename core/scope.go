package core

import (
	"sort"

	"github.com/hupe1980/trainmesh/logging"
)

// Values is the attribute set passed to Assign.
type Values map[string]any

// savedAttr snapshots one attribute prior to a scoped mutation. present
// distinguishes "was unset" from "was explicitly set to some value"; an unset
// attribute is restored by deletion, returning it to the Nothing state.
type savedAttr struct {
	name    string
	value   any
	present bool
}

// Scope is the guard returned by Assign and Restore. Exit writes the
// snapshot back; pair it with defer so restoration survives panics and
// nested scopes unwind in LIFO order:
//
//	defer core.Assign(ctx.Iteration, core.Values{core.AttrCurrent: epoch}).Exit()
//
// Restoration failures are logged and suppressed so they never mask the
// protected block's own outcome; a best-effort restore of the remaining
// attributes continues.
type Scope struct {
	store   AttrStore
	saved   []savedAttr
	restore bool
	logger  logging.Logger
}

// ScopeOption customizes a Scope.
type ScopeOption func(*Scope)

// WithoutRestore disables write-back on Exit for callers that intentionally
// want the mutation to persist beyond the scope.
func WithoutRestore() ScopeOption {
	return func(s *Scope) { s.restore = false }
}

// WithScopeLogger overrides the logger used for suppressed restore errors.
func WithScopeLogger(l logging.Logger) ScopeOption {
	return func(s *Scope) { s.logger = l }
}

// Assign snapshots the current values of every attribute in values (recording
// "unset" where applicable), then sets the new values. The returned Scope
// restores the snapshot on Exit. Set failures during entry are logged and the
// remaining assignments continue, mirroring the restore policy.
func Assign(store AttrStore, values Values, opts ...ScopeOption) *Scope {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	s := newScope(store, names, opts...)
	for _, name := range names {
		if err := store.SetAttr(name, values[name]); err != nil {
			s.logger.Error("Assigning scoped attribute failed", "attr", name, "error", err)
		}
	}
	return s
}

// Restore snapshots the named attributes without assigning new values. Use it
// around code blocks that must leave those attributes unchanged no matter
// what they do in between.
func Restore(store AttrStore, names []string, opts ...ScopeOption) *Scope {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return newScope(store, sorted, opts...)
}

func newScope(store AttrStore, names []string, opts ...ScopeOption) *Scope {
	s := &Scope{store: store, restore: true, logger: logging.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.saved = make([]savedAttr, 0, len(names))
	for _, name := range names {
		s.saved = append(s.saved, savedAttr{
			name:    name,
			value:   store.GetAttr(name),
			present: store.HasAttr(name),
		})
	}
	return s
}

// Exit restores every snapshotted attribute in reverse snapshot order.
// Attributes that were unset at entry are deleted, returning them to the
// Nothing state. Errors from individual restores are logged and suppressed.
func (s *Scope) Exit() {
	if !s.restore {
		return
	}
	for i := len(s.saved) - 1; i >= 0; i-- {
		rec := s.saved[i]
		if !rec.present {
			if err := s.store.DelAttr(rec.name); err != nil {
				s.logger.Error("Restoring scoped attribute failed", "attr", rec.name, "error", err)
			}
			continue
		}
		if err := s.store.SetAttr(rec.name, rec.value); err != nil {
			s.logger.Error("Restoring scoped attribute failed", "attr", rec.name, "error", err)
		}
	}
}
