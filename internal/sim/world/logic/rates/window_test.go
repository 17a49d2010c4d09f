package rates

import "testing"

func TestWindow_AllowsUpToMax(t *testing.T) {
	var w Window
	for i := 0; i < 3; i++ {
		if ok, _ := w.Allow(10, 60, 3); !ok {
			t.Fatalf("event %d refused", i)
		}
	}
	ok, cd := w.Allow(20, 60, 3)
	if ok {
		t.Fatalf("fourth event allowed")
	}
	if cd != 50 {
		t.Fatalf("cooldown=%d want 50", cd)
	}
	// Refusals do not consume budget in the next window.
	if ok, _ := w.Allow(70, 60, 3); !ok || w.Start != 70 || w.Count != 1 {
		t.Fatalf("window did not reset: %+v", w)
	}
}

func TestWindow_Disabled(t *testing.T) {
	var w Window
	for i := 0; i < 100; i++ {
		if ok, _ := w.Allow(uint64(i), 0, 1); !ok {
			t.Fatalf("size 0 must not limit")
		}
		if ok, _ := w.Allow(uint64(i), 10, 0); !ok {
			t.Fatalf("max 0 must not limit")
		}
	}
}

func TestWindow_OpensAtFirstEvent(t *testing.T) {
	var w Window
	if ok, _ := w.Allow(100, 60, 1); !ok {
		t.Fatalf("first event refused")
	}
	if w.Start != 100 {
		t.Fatalf("Start=%d want 100", w.Start)
	}
	ok, cd := w.Allow(159, 60, 1)
	if ok || cd != 1 {
		t.Fatalf("tick 159: ok=%v cooldown=%d want refused with 1", ok, cd)
	}
	if ok, _ := w.Allow(160, 60, 1); !ok || w.Start != 160 {
		t.Fatalf("tick 160 did not open a new window: %+v", w)
	}
}
