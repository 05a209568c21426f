package suppress

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestDoRestoresUndefinedState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var insideValue, insideDefined bool

	err := Do(ctx, "tenant", true, func(scoped context.Context) error {
		insideValue, insideDefined = Lookup(scoped, "tenant")
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if !insideValue || !insideDefined {
		t.Fatalf("expected suppression inside block, got %t %t", insideValue, insideDefined)
	}
	if _, defined := Lookup(ctx, "tenant"); defined {
		t.Fatalf("expected undefined state after block")
	}
}

func TestDoRestoresExplicitFalseOnError(t *testing.T) {
	t.Parallel()

	ctx := With(context.Background(), "tenant", false)
	sentinel := errors.New("boom")

	err := Do(ctx, "tenant", true, func(context.Context) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected block error to propagate, got %v", err)
	}

	value, defined := Lookup(ctx, "tenant")
	if value || !defined {
		t.Fatalf("expected explicit false to remain, got %t %t", value, defined)
	}
}

func TestDoRestoresStateOnPanic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	func() {
		defer func() { _ = recover() }()
		_ = Do(ctx, "tenant", true, func(context.Context) error { panic("boom") })
	}()

	if _, defined := Lookup(ctx, "tenant"); defined {
		t.Fatalf("expected undefined state after panic")
	}
}

func TestNestedScopes(t *testing.T) {
	t.Parallel()

	outer := With(context.Background(), "tenant", true)
	inner := With(outer, "tenant", false)
	other := Unset(inner, "tenant")

	if value, _ := Lookup(inner, "tenant"); value {
		t.Fatalf("expected inner scope to override outer")
	}
	if value, _ := Lookup(outer, "tenant"); !value {
		t.Fatalf("expected outer scope to be untouched")
	}
	if _, defined := Lookup(other, "tenant"); defined {
		t.Fatalf("expected Unset to hide outer values")
	}
	if _, defined := Lookup(outer, "account"); defined {
		t.Fatalf("expected other record types to be unaffected")
	}
}

func TestRegistryResolutionOrder(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	ctx := context.Background()

	if registry.Suppressed(ctx, "tenant", false, false) {
		t.Fatalf("expected default to be unsuppressed")
	}

	registry.SetPersistent("tenant")
	if !registry.Suppressed(ctx, "tenant", false, false) {
		t.Fatalf("expected persistent suppression")
	}
	if registry.Suppressed(With(ctx, "tenant", false), "tenant", false, false) {
		t.Fatalf("expected scoped false to win over persistent")
	}
	if registry.Suppressed(ctx, "tenant", false, true) {
		t.Fatalf("expected instance override to win")
	}

	registry.ResetPersistent("tenant")
	if registry.Suppressed(ctx, "tenant", false, false) {
		t.Fatalf("expected reset to clear persistent suppression")
	}

	if !registry.Suppressed(With(ctx, All, true), "tenant", false, false) {
		t.Fatalf("expected wildcard scope to apply")
	}
	if registry.Suppressed(With(With(ctx, All, true), "tenant", false), "tenant", false, false) {
		t.Fatalf("expected type scope to win over wildcard scope")
	}
}

func TestScopesAreIsolatedAcrossGoroutines(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	base := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 16)
	for idx := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			suppressed := idx%2 == 0
			_ = Do(base, "tenant", suppressed, func(ctx context.Context) error {
				results[idx] = registry.Suppressed(ctx, "tenant", false, false)
				return nil
			})
		}(idx)
	}
	wg.Wait()

	for idx, got := range results {
		if want := idx%2 == 0; got != want {
			t.Fatalf("goroutine %d observed suppression %t, want %t", idx, got, want)
		}
	}
}
