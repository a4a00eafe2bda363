package engine

import (
	"testing"

	"github.com/nanojs/corevm/config"
	"github.com/nanojs/corevm/embed"
	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/gc"
	"github.com/nanojs/corevm/value"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(config.Config{HeapBytes: 8192})
}

func TestNew_CreatesGlobalObject(t *testing.T) {
	e := newTestEngine(t)
	g := e.Global()
	if !g.IsObject() {
		t.Fatal("Global() should return an object handle")
	}
}

func TestNumberRoundTrip_ThroughEmbedHandles(t *testing.T) {
	e := newTestEngine(t)
	h, err := embed.Number(e, 42.5)
	if err != nil {
		t.Fatal(err)
	}
	got, err := embed.AsNumber(e, h)
	if err != nil || got != 42.5 {
		t.Fatalf("AsNumber = (%v, %v), want (42.5, nil)", got, err)
	}
}

func TestPushPopRoot_SurvivesCollection(t *testing.T) {
	e := newTestEngine(t)
	cp, err := e.objects.Create(0, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.objects.Deref(cp); err != nil {
		t.Fatal(err)
	}

	h := embed.FromValue(value.NewObject(cp))
	e.PushRoot(h)
	if err := e.Collect(gc.Low); err != nil {
		t.Fatal(err)
	}
	if _, err := e.objects.Type(cp); err != nil {
		t.Fatalf("rooted object should survive collection: %v", err)
	}

	e.PopRoot()
	if err := e.Collect(gc.High); err != nil {
		t.Fatal(err)
	}
	for cur := e.objects.Head(); cur != 0; {
		if cur == cp {
			t.Fatal("object should be unlinked from the GC chain once popped and unreferenced")
		}
		next, err := e.objects.GCNext(cur)
		if err != nil {
			t.Fatal(err)
		}
		cur = next
	}
}

func TestNewError_ErrorCarrierRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.NewError(errvalue.KindType, "not a function", false)
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsError() {
		t.Fatal("NewError should produce an ERROR-tagged value")
	}
	c, err := e.ErrorCarrier(v)
	if err != nil {
		t.Fatal(err)
	}
	if c.Kind != errvalue.KindType || c.Message != "not a function" {
		t.Fatalf("ErrorCarrier() = %+v, want Kind=TypeError Message=%q", c, "not a function")
	}
	if want, got := "TypeError: not a function", c.String(); got != want {
		t.Fatalf("Carrier.String() = %q, want %q", got, want)
	}
}

func TestHeapStats_ReportsUsage(t *testing.T) {
	e := newTestEngine(t)
	stats := e.HeapStats()
	if stats.Committed == 0 {
		t.Fatal("HeapStats.Committed should be nonzero")
	}
	if stats.Used == 0 {
		t.Fatal("HeapStats.Used should be nonzero once the global object is created")
	}
}
