package scheduler

import (
	"time"

	"chat-relay/internal/report"
)

// detector turns wall-clock samples into at-most-once bucket transitions.
// It remembers the last seen hour and day buckets; a change of bucket
// between two samples means the previous bucket's window has fully elapsed
// and is due for aggregation exactly once.
type detector struct {
	cutoffHour int
	lastHourly string // "2006-01-02T15", "" until the first sample
	lastDaily  string // "2006-01-02", "" until the first sample
}

func newDetector(cutoffHour int) *detector {
	return &detector{cutoffHour: cutoffHour}
}

func hourBucket(now time.Time) string {
	return now.Format("2006-01-02T15")
}

// dayBucket labels the daily period now belongs to. The bucket flips at
// the cutoff hour, not at midnight: before the cutoff the sample still
// belongs to the previous day's bucket.
func (d *detector) dayBucket(now time.Time) string {
	if now.Hour() < d.cutoffHour {
		now = now.AddDate(0, 0, -1)
	}
	return now.Format("2006-01-02")
}

// advance consumes one clock sample and returns the windows that became
// due since the previous sample. The first sample only seeds the state:
// the process cannot know whether buckets preceding its start were already
// aggregated by a previous run.
func (d *detector) advance(now time.Time) []report.Window {
	var due []report.Window

	hb := hourBucket(now)
	if d.lastHourly == "" {
		d.lastHourly = hb
	} else if hb != d.lastHourly {
		end := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
		due = append(due, report.HourlyWindow(end))
		d.lastHourly = hb
	}

	db := d.dayBucket(now)
	if d.lastDaily == "" {
		d.lastDaily = db
	} else if db != d.lastDaily {
		cutoffDay, err := time.ParseInLocation("2006-01-02", db, now.Location())
		if err == nil {
			cutoff := cutoffDay.Add(time.Duration(d.cutoffHour) * time.Hour)
			due = append(due, report.DailyWindow(cutoff))
		}
		d.lastDaily = db
	}

	return due
}
