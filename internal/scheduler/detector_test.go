package scheduler

import (
	"testing"
	"time"

	"chat-relay/internal/report"
)

func TestDetectorFirstSampleSeedsOnly(t *testing.T) {
	d := newDetector(23)
	now := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
	if due := d.advance(now); len(due) != 0 {
		t.Fatalf("first sample must not fire, got %v", due)
	}
}

func TestDetectorHourlyTransition(t *testing.T) {
	d := newDetector(23)
	base := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

	d.advance(base)
	// ticks within the same hour fire nothing
	for _, dt := range []time.Duration{10 * time.Second, 5 * time.Minute, 29 * time.Minute} {
		if due := d.advance(base.Add(dt)); len(due) != 0 {
			t.Fatalf("tick inside hour fired: %v", due)
		}
	}

	// first tick of the next hour fires the completed window once
	due := d.advance(base.Add(31 * time.Minute))
	if len(due) != 1 {
		t.Fatalf("want 1 window, got %d", len(due))
	}
	w := due[0]
	if w.Kind != report.KindHourly {
		t.Fatalf("want hourly window, got %s", w.Kind)
	}
	wantStart := time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) || !w.End.Equal(wantStart.Add(time.Hour)) {
		t.Fatalf("window bounds: %v — %v", w.Start, w.End)
	}

	// further ticks in the same hour stay quiet
	if due := d.advance(base.Add(45 * time.Minute)); len(due) != 0 {
		t.Fatalf("bucket fired twice: %v", due)
	}
}

func TestDetectorDailyTransitionAtCutoff(t *testing.T) {
	d := newDetector(23)
	d.advance(time.Date(2024, 5, 17, 22, 50, 0, 0, time.UTC))

	due := d.advance(time.Date(2024, 5, 17, 23, 0, 10, 0, time.UTC))

	var daily *report.Window
	for i := range due {
		if due[i].Kind == report.KindDaily {
			daily = &due[i]
		}
	}
	if daily == nil {
		t.Fatalf("no daily window at cutoff, due=%v", due)
	}
	wantEnd := time.Date(2024, 5, 17, 23, 0, 0, 0, time.UTC)
	if !daily.End.Equal(wantEnd) || !daily.Start.Equal(wantEnd.AddDate(0, 0, -1)) {
		t.Fatalf("daily window bounds: %v — %v", daily.Start, daily.End)
	}

	// one firing per day bucket
	if due := d.advance(time.Date(2024, 5, 17, 23, 30, 0, 0, time.UTC)); len(due) != 0 {
		t.Fatalf("daily bucket fired twice: %v", due)
	}
}

func TestDetectorMidnightDoesNotFireDaily(t *testing.T) {
	d := newDetector(23)
	d.advance(time.Date(2024, 5, 17, 23, 30, 0, 0, time.UTC))

	// midnight is an hour transition but not a day-bucket transition when
	// the cutoff is 23:00
	due := d.advance(time.Date(2024, 5, 18, 0, 0, 30, 0, time.UTC))
	for _, w := range due {
		if w.Kind == report.KindDaily {
			t.Fatalf("daily fired at midnight with 23:00 cutoff: %v", w)
		}
	}
	if len(due) != 1 || due[0].Kind != report.KindHourly {
		t.Fatalf("want only the hourly window, got %v", due)
	}
}

func TestDetectorCustomCutoff(t *testing.T) {
	d := newDetector(0)
	d.advance(time.Date(2024, 5, 17, 23, 45, 0, 0, time.UTC))

	due := d.advance(time.Date(2024, 5, 18, 0, 0, 30, 0, time.UTC))
	var daily *report.Window
	for i := range due {
		if due[i].Kind == report.KindDaily {
			daily = &due[i]
		}
	}
	if daily == nil {
		t.Fatalf("midnight cutoff did not fire at midnight: %v", due)
	}
	wantEnd := time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC)
	if !daily.End.Equal(wantEnd) {
		t.Fatalf("daily window end: %v", daily.End)
	}
}
