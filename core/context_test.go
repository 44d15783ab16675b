package core

import (
	"errors"
	"testing"

	"github.com/hupe1980/trainmesh/logging"
)

func TestAttrs_GetUnsetReturnsNothing(t *testing.T) {
	store := NewAttrs("test")
	if !IsNothing(store.GetAttr("missing")) {
		t.Error("unset attribute must read as Nothing")
	}
	if store.HasAttr("missing") {
		t.Error("unset attribute must not be present")
	}
}

func TestAttrs_SetNilIsPresent(t *testing.T) {
	store := NewAttrs("test")
	store.SetAttr("label", nil)

	if !store.HasAttr("label") {
		t.Error("nil value must count as present")
	}
	if IsNothing(store.GetAttr("label")) {
		t.Error("nil value must not read as Nothing")
	}
}

func TestCheckPath_NestedStores(t *testing.T) {
	inner := NewAttrs("inner")
	inner.SetAttr("total", 10)

	outer := NewAttrs("outer")
	outer.SetAttr("iteration", inner)

	if !CheckPath(outer, "iteration.total") {
		t.Error("nested path should resolve")
	}
	if CheckPath(outer, "iteration.missing") {
		t.Error("missing leaf should fail")
	}
	if CheckPath(outer, "nope.total") {
		t.Error("missing root should fail")
	}
}

func TestContext_CheckReportsMissingPaths(t *testing.T) {
	ctx := NewContext(nil, logging.NoOpLogger{})
	ctx.Iteration.SetAttr(AttrTotal, 5)

	if err := ctx.Check(true, "iteration.total"); err != nil {
		t.Fatalf("present path failed: %v", err)
	}

	err := ctx.Check(true, "iteration.total", "pipeline.loss_func", "step.batch")
	if err == nil {
		t.Fatal("expected a config error")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type = %T, want *ConfigError", err)
	}
	if len(cfgErr.Paths) != 2 {
		t.Errorf("missing paths = %v, want the two absent ones", cfgErr.Paths)
	}
}

func TestContext_GradAccDefaultsToOne(t *testing.T) {
	ctx := NewContext(nil, logging.NoOpLogger{})
	if got := ctx.GradAcc(); got != 1 {
		t.Errorf("GradAcc = %d, want 1", got)
	}

	ctx.Pipeline.SetAttr(AttrGradAcc, 0)
	if got := ctx.GradAcc(); got != 1 {
		t.Errorf("GradAcc clamps to 1, got %d", got)
	}

	ctx.Pipeline.SetAttr(AttrGradAcc, 4)
	if got := ctx.GradAcc(); got != 4 {
		t.Errorf("GradAcc = %d, want 4", got)
	}
}

func TestExecRanks_ThreeStates(t *testing.T) {
	var zero ExecRanks
	if !zero.Always() {
		t.Error("zero value must be the always state")
	}

	cases := []struct {
		name  string
		gate  ExecRanks
		rank  int
		admit bool
	}{
		{"always admits 0", ExecAlways, 0, true},
		{"always admits 3", ExecAlways, 3, true},
		{"never rejects 0", ExecNever, 0, false},
		{"set admits member", Ranks(0, 2), 2, true},
		{"set rejects non-member", Ranks(0, 2), 1, false},
		{"empty set rejects all", Ranks(), 0, false},
	}

	for _, tc := range cases {
		if got := tc.gate.Admits(tc.rank); got != tc.admit {
			t.Errorf("%s: Admits(%d) = %v, want %v", tc.name, tc.rank, got, tc.admit)
		}
	}

	if Ranks().Never() {
		t.Error("an empty explicit set is not the never state")
	}
}

func TestInvoke_WrapperOrder(t *testing.T) {
	var order []string

	h := &wrappedHandler{fn: func(*Context) error {
		order = append(order, "handle")
		return nil
	}}
	h.wrappers = []Wrapper{
		WrapperFunc(func(next HandleFunc) HandleFunc {
			return func(ctx *Context) error {
				order = append(order, "outer")
				return next(ctx)
			}
		}),
		WrapperFunc(func(next HandleFunc) HandleFunc {
			return func(ctx *Context) error {
				order = append(order, "inner")
				return next(ctx)
			}
		}),
	}

	ctx := NewContext(nil, logging.NoOpLogger{})
	if err := Invoke(h, ctx); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	want := []string{"outer", "inner", "handle"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// wrappedHandler is a minimal Handler for Invoke tests.
type wrappedHandler struct {
	fn        HandleFunc
	wrappers  []Wrapper
	execRanks ExecRanks
}

func (h *wrappedHandler) ID() string { return "wrapped" }

func (h *wrappedHandler) ExecRanks() ExecRanks { return h.execRanks }

func (h *wrappedHandler) SetExecRanks(r ExecRanks) { h.execRanks = r }

func (h *wrappedHandler) Wrappers() []Wrapper { return h.wrappers }

func (h *wrappedHandler) Lifecycle() string { return "" }

func (h *wrappedHandler) Handle(ctx *Context) error { return h.fn(ctx) }

func (h *wrappedHandler) Parent() Handler { return nil }
