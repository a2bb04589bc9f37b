package exchange

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPickAndBind_PicksLowestActiveCount(t *testing.T) {
	e := New()
	mustRegister(t, e, "busy", "http://a:1", "calc")
	mustRegister(t, e, "idle", "http://b:1", "calc")

	// Load the first worker with two instances by hand.
	e.workers["busy"].ActiveInstances = 2

	w, err := e.PickAndBind("calc", "inst-1", nil)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if w.ID != "idle" {
		t.Errorf("picked %s, want idle", w.ID)
	}
}

func TestPickAndBind_TieBreakEarliestHeartbeat(t *testing.T) {
	e := New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fakeClock(e, &now)

	mustRegister(t, e, "elder", "http://a:1", "calc")
	now = now.Add(10 * time.Second)
	mustRegister(t, e, "newer", "http://b:1", "calc")

	// Equal counts: the longer-lived worker wins.
	w, err := e.PickAndBind("calc", "inst-1", nil)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if w.ID != "elder" {
		t.Errorf("picked %s, want elder", w.ID)
	}
}

func TestPickAndBind_NoWorkerForTool(t *testing.T) {
	e := New()
	mustRegister(t, e, "w1", "http://a:1", "calc")

	_, err := e.PickAndBind("summarize", "inst-1", nil)
	if !errors.Is(err, ErrNoWorkerAvailable) {
		t.Errorf("PickAndBind() error = %v, want ErrNoWorkerAvailable", err)
	}
}

func TestPickAndBind_SkipsSweptWorkers(t *testing.T) {
	e := New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fakeClock(e, &now)

	mustRegister(t, e, "stale", "http://a:1", "calc")
	now = now.Add(2 * time.Minute)
	mustRegister(t, e, "fresh", "http://b:1", "calc")
	e.Sweep(time.Minute)

	w, err := e.PickAndBind("calc", "inst-1", nil)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if w.ID != "fresh" {
		t.Errorf("picked %s, want fresh", w.ID)
	}

	now = now.Add(2 * time.Minute)
	e.Sweep(time.Minute)
	if _, err := e.PickAndBind("calc", "inst-2", nil); !errors.Is(err, ErrNoWorkerAvailable) {
		t.Errorf("PickAndBind() with all workers OFFLINE = %v, want ErrNoWorkerAvailable", err)
	}
}

func TestPickAndBind_InstanceAlreadyBound(t *testing.T) {
	e := New()
	mustRegister(t, e, "w1", "http://a:1", "calc")
	if _, err := e.PickAndBind("calc", "inst-1", nil); err != nil {
		t.Fatalf("first bind: %v", err)
	}

	_, err := e.PickAndBind("calc", "inst-1", nil)
	if !errors.Is(err, ErrInstanceBound) {
		t.Errorf("second bind error = %v, want ErrInstanceBound", err)
	}
	if got := e.Snapshot().Workers[0].ActiveInstances; got != 1 {
		t.Errorf("active instances = %d, want 1 (no double increment)", got)
	}
}

func TestPickAndBind_Validation(t *testing.T) {
	e := New()
	if _, err := e.PickAndBind("", "inst-1", nil); !errors.Is(err, ErrValidation) {
		t.Errorf("empty tool error = %v, want ErrValidation", err)
	}
	if _, err := e.PickAndBind("calc", "", nil); !errors.Is(err, ErrValidation) {
		t.Errorf("empty instance error = %v, want ErrValidation", err)
	}
}

func TestPickAndBind_DistributionAcrossTwoWorkers(t *testing.T) {
	e := New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fakeClock(e, &now)
	mustRegister(t, e, "a", "http://a:1", "calc")
	now = now.Add(time.Second)
	mustRegister(t, e, "b", "http://b:1", "calc")

	// Three creates over two workers must split no worse than 2/1.
	for i := 0; i < 3; i++ {
		if _, err := e.PickAndBind("calc", fmt.Sprintf("inst-%d", i), nil); err != nil {
			t.Fatalf("bind %d: %v", i, err)
		}
	}

	for _, w := range e.Snapshot().Workers {
		if w.ActiveInstances > 2 {
			t.Errorf("worker %s holds %d instances, want <= 2", w.ID, w.ActiveInstances)
		}
	}
}

func TestPickAndBind_CountsStayBalanced(t *testing.T) {
	e := New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fakeClock(e, &now)
	for _, id := range []string{"a", "b", "c"} {
		mustRegister(t, e, id, "http://"+id+":1", "calc")
		now = now.Add(time.Second)
	}

	// Least-loaded selection keeps the spread within one instance at every step.
	for i := 0; i < 10; i++ {
		if _, err := e.PickAndBind("calc", fmt.Sprintf("inst-%d", i), nil); err != nil {
			t.Fatalf("bind %d: %v", i, err)
		}
		min, max := 1<<30, 0
		for _, w := range e.Snapshot().Workers {
			if w.ActiveInstances < min {
				min = w.ActiveInstances
			}
			if w.ActiveInstances > max {
				max = w.ActiveInstances
			}
		}
		if max-min > 1 {
			t.Fatalf("after %d binds spread = %d, want <= 1", i+1, max-min)
		}
	}
}

func TestResolve_SameWorkerAcrossCalls(t *testing.T) {
	e := New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fakeClock(e, &now)
	mustRegister(t, e, "a", "http://a:1", "calc")
	now = now.Add(time.Second)
	mustRegister(t, e, "b", "http://b:1", "calc")

	bound, err := e.PickAndBind("calc", "inst-1", map[string]interface{}{"seed": 7})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	for i := 0; i < 3; i++ {
		p, w, err := e.Resolve("inst-1")
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if w.ID != bound.ID {
			t.Fatalf("resolve %d routed to %s, want %s", i, w.ID, bound.ID)
		}
		if p.Tool != "calc" {
			t.Errorf("patch tool = %q, want calc", p.Tool)
		}
	}
}

func TestResolve_NotBound(t *testing.T) {
	_, _, err := New().Resolve("ghost")
	if !errors.Is(err, ErrInstanceNotBound) {
		t.Errorf("Resolve() error = %v, want ErrInstanceNotBound", err)
	}
}

func TestUnbind_DecrementsCount(t *testing.T) {
	e := New()
	mustRegister(t, e, "w1", "http://a:1", "calc")
	if _, err := e.PickAndBind("calc", "inst-1", nil); err != nil {
		t.Fatalf("bind: %v", err)
	}

	if err := e.Unbind("inst-1"); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if got := e.Snapshot().Workers[0].ActiveInstances; got != 0 {
		t.Errorf("active instances = %d, want 0", got)
	}
	if _, _, err := e.Resolve("inst-1"); !errors.Is(err, ErrInstanceNotBound) {
		t.Errorf("Resolve after unbind = %v, want ErrInstanceNotBound", err)
	}
	if err := e.Unbind("inst-1"); !errors.Is(err, ErrInstanceNotBound) {
		t.Errorf("second unbind = %v, want ErrInstanceNotBound", err)
	}
}
