package dialog

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"chat-relay/internal/storage"
)

// Entry is a single inbound message as recorded in the dialogue log.
// Entries are immutable once written and identified by append order
// within their day segment.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Message   string    `json:"message"`
}

// Log is the append-only, day-segmented record of all inbound messages.
type Log struct {
	store storage.Store
}

func NewLog(store storage.Store) *Log {
	return &Log{store: store}
}

// SegmentKey returns the day segment an entry with the given timestamp
// belongs to, e.g. "dialogs_2024-05-17".
func SegmentKey(t time.Time) string {
	return "dialogs_" + t.Format("2006-01-02")
}

func (l *Log) Append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := l.store.Append(SegmentKey(e.Timestamp), line); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// ReadWindow returns all entries with timestamps in [start, end), in
// timestamp order. Only the day segments overlapping the window are read.
func (l *Log) ReadWindow(start, end time.Time) ([]Entry, error) {
	var entries []Entry
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for day.Before(end) {
		lines, err := l.store.Read(SegmentKey(day))
		if err != nil {
			return nil, fmt.Errorf("read segment %s: %w", SegmentKey(day), err)
		}
		for _, line := range lines {
			var e Entry
			if err := json.Unmarshal(line, &e); err != nil {
				continue
			}
			if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
				continue
			}
			entries = append(entries, e)
		}
		day = day.AddDate(0, 0, 1)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}
