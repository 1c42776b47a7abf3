package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
)

type basePlugin struct{ name string }

func (p *basePlugin) Name() string { return p.name }

type countingPlugin struct {
	basePlugin
	applied   atomic.Int64
	finalized atomic.Int64
	lowBal    atomic.Int64
}

func (p *countingPlugin) OnEntryApplied(_ context.Context, _, _ interface{}) error {
	p.applied.Add(1)
	return nil
}

func (p *countingPlugin) OnEntryFinalized(_ context.Context, _, _ interface{}) error {
	p.finalized.Add(1)
	return nil
}

func (p *countingPlugin) OnLowBalance(_ context.Context, _ interface{}) error {
	p.lowBal.Add(1)
	return nil
}

type failingPlugin struct{ basePlugin }

func (p *failingPlugin) OnEntryApplied(_ context.Context, _, _ interface{}) error {
	return errors.New("boom")
}

type scoringPlugin struct {
	basePlugin
	score float64
}

func (p *scoringPlugin) ScoreRisk(_ context.Context, _ interface{}) (float64, error) {
	return p.score, nil
}

type modelPlugin struct {
	basePlugin
	model string
}

func (p *modelPlugin) ModelName() string { return p.model }

func (p *modelPlugin) Compute(_ context.Context, _ interface{}) (interface{}, error) {
	return nil, nil
}

func newQuietRegistry() *Registry {
	r := NewRegistry()
	r.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r
}

func TestRegisterAndLookup(t *testing.T) {
	r := newQuietRegistry()
	p := &countingPlugin{basePlugin: basePlugin{name: "counter"}}

	if err := r.Register(p); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
	if got := r.Get("counter"); got == nil {
		t.Error("Get returned nil for registered plugin")
	}
	if got := r.Get("missing"); got != nil {
		t.Error("Get returned a plugin for an unknown name")
	}
	if got := len(r.List()); got != 1 {
		t.Errorf("List: got %d, want 1", got)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := newQuietRegistry()
	if err := r.Register(&basePlugin{name: "dup"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&basePlugin{name: "dup"}); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestEmitDispatchesOnlyImplementers(t *testing.T) {
	r := newQuietRegistry()
	ctx := context.Background()

	counter := &countingPlugin{basePlugin: basePlugin{name: "counter"}}
	if err := r.Register(counter); err != nil {
		t.Fatal(err)
	}
	// A plugin with no hooks is valid and never dispatched.
	if err := r.Register(&basePlugin{name: "inert"}); err != nil {
		t.Fatal(err)
	}

	r.EmitEntryApplied(ctx, nil, nil)
	r.EmitEntryApplied(ctx, nil, nil)
	r.EmitEntryFinalized(ctx, nil, nil)
	r.EmitLowBalance(ctx, nil)
	// Hooks the counter does not implement are silently skipped.
	r.EmitPaymentCompleted(ctx, nil, nil)
	r.EmitUsageRecorded(ctx, nil)

	if got := counter.applied.Load(); got != 2 {
		t.Errorf("applied: got %d, want 2", got)
	}
	if got := counter.finalized.Load(); got != 1 {
		t.Errorf("finalized: got %d, want 1", got)
	}
	if got := counter.lowBal.Load(); got != 1 {
		t.Errorf("low balance: got %d, want 1", got)
	}
}

func TestEmitSurvivesFailingPlugin(t *testing.T) {
	r := newQuietRegistry()
	ctx := context.Background()

	if err := r.Register(&failingPlugin{basePlugin{name: "failing"}}); err != nil {
		t.Fatal(err)
	}
	counter := &countingPlugin{basePlugin: basePlugin{name: "counter"}}
	if err := r.Register(counter); err != nil {
		t.Fatal(err)
	}

	// The failing plugin is logged and skipped; later plugins still run.
	r.EmitEntryApplied(ctx, nil, nil)
	if got := counter.applied.Load(); got != 1 {
		t.Errorf("applied: got %d, want 1", got)
	}
}

func TestExtensionPointLookups(t *testing.T) {
	r := newQuietRegistry()

	if err := r.Register(&scoringPlugin{basePlugin: basePlugin{name: "scorer"}, score: 0.4}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&modelPlugin{basePlugin: basePlugin{name: "model"}, model: "flat"}); err != nil {
		t.Fatal(err)
	}

	scorers := r.GetRiskScorers()
	if len(scorers) != 1 {
		t.Fatalf("risk scorers: got %d, want 1", len(scorers))
	}
	score, err := scorers[0].ScoreRisk(context.Background(), nil)
	if err != nil || score != 0.4 {
		t.Errorf("ScoreRisk: got %v, %v", score, err)
	}

	if r.GetCostModel("flat") == nil {
		t.Error("cost model not found by model name")
	}
	if r.GetCostModel("missing") != nil {
		t.Error("unknown cost model should be nil")
	}
	if len(r.GetTaxCalculators()) != 0 {
		t.Error("no tax calculators were registered")
	}
}

func TestCallWithTimeoutContextCancel(t *testing.T) {
	r := newQuietRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)
	err := r.callWithTimeout(ctx, "stuck", func() error {
		<-block
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
