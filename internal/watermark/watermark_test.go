package watermark

import (
	"testing"
	"time"
)

func TestNewAppliesGrace(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := New(now, 5*time.Second)
	if got, want := w.Value(), now.UnixMilli()-5000; got != want {
		t.Errorf("Value = %d, want %d", got, want)
	}
}

func TestAdvanceNeverDecreases(t *testing.T) {
	w := New(time.UnixMilli(1000), 0)
	// Each entry is the max modification time of one cycle's batch; 0 marks
	// an empty batch, which leaves the cursor where it was.
	batches := []int64{1500, 0, 1200, 1500, 0, 4000, 3999}
	prev := w.Value()
	for i, ms := range batches {
		if ms != 0 {
			w.Advance(ms)
		}
		if w.Value() < prev {
			t.Fatalf("cycle %d: watermark went back from %d to %d", i, prev, w.Value())
		}
		prev = w.Value()
	}
	if w.Value() != 4000 {
		t.Errorf("final watermark = %d, want 4000", w.Value())
	}
}

func TestAdvanceReportsMovement(t *testing.T) {
	w := New(time.UnixMilli(100), 0)
	if w.Advance(100) {
		t.Error("advancing to the same value must not report movement")
	}
	if !w.Advance(101) {
		t.Error("advancing forward must report movement")
	}
}
