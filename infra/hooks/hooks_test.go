package hooks

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegisterValidation(t *testing.T) {
	m := NewManager()

	if err := m.Register(nil); err == nil {
		t.Fatalf("expected nil hook to fail")
	}
	if err := m.Register(&Hook{Name: "x", Phase: BeforeStart}); err == nil {
		t.Fatalf("expected nil function to fail")
	}
	fn := func(ctx context.Context) error { return nil }
	if err := m.Register(&Hook{Name: "x", Phase: "mid_flight", Function: fn}); err == nil {
		t.Fatalf("expected invalid phase to fail")
	}
	if err := m.Register(&Hook{Name: "x", Phase: BeforeStart, Function: fn}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
}

func TestExecuteRunsInPriorityOrder(t *testing.T) {
	m := NewManager()
	var order []string
	record := func(name string) HookFunc {
		return func(ctx context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	m.Register(&Hook{Name: "late", Phase: AfterStart, Function: record("late"), Priority: 20})
	m.Register(&Hook{Name: "early", Phase: AfterStart, Function: record("early"), Priority: 1})
	m.Register(&Hook{Name: "mid", Phase: AfterStart, Function: record("mid"), Priority: 10})
	// Hooks in other phases must not run.
	m.Register(&Hook{Name: "other", Phase: BeforeShutdown, Function: record("other"), Priority: 0})

	if err := m.Execute(context.Background(), AfterStart); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	want := []string{"early", "mid", "late"}
	if len(order) != len(want) {
		t.Fatalf("expected run order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected run order %v, got %v", want, order)
		}
	}
}

func TestExecuteStopsAtFirstError(t *testing.T) {
	m := NewManager()
	errBoom := errors.New("boom")
	var ran []string

	m.Register(&Hook{Name: "ok", Phase: BeforeStart, Priority: 1, Function: func(ctx context.Context) error {
		ran = append(ran, "ok")
		return nil
	}})
	m.Register(&Hook{Name: "broken", Phase: BeforeStart, Priority: 2, Function: func(ctx context.Context) error {
		return errBoom
	}})
	m.Register(&Hook{Name: "never", Phase: BeforeStart, Priority: 3, Function: func(ctx context.Context) error {
		ran = append(ran, "never")
		return nil
	}})

	err := m.Execute(context.Background(), BeforeStart)
	if err == nil {
		t.Fatalf("expected execute to surface the hook error")
	}
	if !errors.Is(err, errBoom) || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("unexpected execute error: %v", err)
	}
	if len(ran) != 1 || ran[0] != "ok" {
		t.Fatalf("expected only the first hook to run, got %v", ran)
	}
}

func TestExecuteEmptyPhase(t *testing.T) {
	m := NewManager()
	if err := m.Execute(context.Background(), AfterShutdown); err != nil {
		t.Fatalf("empty phase must be a no-op, got %v", err)
	}
}
