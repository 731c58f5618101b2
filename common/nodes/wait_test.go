package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/lyzr/flow/common/workflow"
)

// TestWaitPassesItemsThrough verifies a short wait forwards items untouched.
func TestWaitPassesItemsThrough(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Pause", TypeWait, map[string]interface{}{
		"amount": float64(5),
		"unit":   "milliseconds",
	})

	in := []workflow.Item{itemWith(t, "v", float64(1))}
	start := time.Now()
	result, err := (&waitExecutor{maxWait: time.Second}).Execute(rc, node, in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("Expected at least 5ms wait, got %v", elapsed)
	}

	items := result.Outputs[workflow.PortMain].Items
	if len(items) != 1 || items[0].JSON["v"] != float64(1) {
		t.Errorf("Expected items to pass through, got %v", items)
	}
}

// TestWaitClampsToMaximum verifies a long wait is cut down to the policy
// maximum instead of parking the engine.
func TestWaitClampsToMaximum(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Pause", TypeWait, map[string]interface{}{
		"amount": float64(10),
		"unit":   "minutes",
	})

	start := time.Now()
	_, err := (&waitExecutor{maxWait: 10 * time.Millisecond}).Execute(rc, node, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected clamped wait, slept %v", elapsed)
	}
}

// TestWaitHonorsCancellation verifies a cancelled run interrupts the sleep.
func TestWaitHonorsCancellation(t *testing.T) {
	rc := newFakeRunContext(t)
	ctx, cancel := context.WithCancel(context.Background())
	rc.ctx = ctx
	node := rc.addNode("Pause", TypeWait, map[string]interface{}{
		"amount": float64(10),
		"unit":   "seconds",
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := (&waitExecutor{maxWait: time.Minute}).Execute(rc, node, nil)
	if err == nil {
		t.Fatal("Expected context error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Expected prompt cancellation, waited %v", elapsed)
	}
}

// TestDurationFor covers the unit table.
func TestDurationFor(t *testing.T) {
	tests := []struct {
		amount float64
		unit   string
		want   time.Duration
	}{
		{500, "milliseconds", 500 * time.Millisecond},
		{2, "ms", 2 * time.Millisecond},
		{1.5, "seconds", 1500 * time.Millisecond},
		{2, "minutes", 2 * time.Minute},
		{1, "hours", time.Hour},
		{3, "unknown-unit", 3 * time.Second},
	}
	for _, tt := range tests {
		if got := durationFor(tt.amount, tt.unit); got != tt.want {
			t.Errorf("durationFor(%v, %q): expected %v, got %v", tt.amount, tt.unit, tt.want, got)
		}
	}
}
