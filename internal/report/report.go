package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"chat-relay/internal/dialog"
	"chat-relay/internal/storage"
)

type Kind string

const (
	KindHourly Kind = "hourly"
	KindDaily  Kind = "daily"
)

// Window is a half-open aggregation interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
	Kind  Kind
}

// HourlyWindow is the one-hour window ending at the given hour boundary.
func HourlyWindow(end time.Time) Window {
	return Window{Start: end.Add(-time.Hour), End: end, Kind: KindHourly}
}

// DailyWindow is the 24-hour window ending at the given daily cutoff.
func DailyWindow(cutoff time.Time) Window {
	return Window{Start: cutoff.AddDate(0, 0, -1), End: cutoff, Kind: KindDaily}
}

// ArtifactKey is the artifact name a window's report is persisted under.
// Hourly reports are keyed by hour of day, daily reports by calendar date,
// so a re-run for the same window overwrites the same artifact.
func (w Window) ArtifactKey() string {
	if w.Kind == KindHourly {
		return fmt.Sprintf("report_hourly_%02d", w.Start.Hour())
	}
	return "report_daily_" + w.End.Format("2006-01-02")
}

type Report struct {
	Window       Window
	MessageCount int
	UniqueUsers  int
	TopTerms     []string
	Highlights   []string
}

const (
	topTermCount     = 3
	hourlyHighlights = 2
	dailyHighlights  = 10
	highlightBudget  = 100
	minTermRunes     = 5
)

// Aggregator reads the dialogue log for a window and persists a formatted
// report artifact.
type Aggregator struct {
	log   *dialog.Log
	store storage.Store
}

func NewAggregator(log *dialog.Log, store storage.Store) *Aggregator {
	return &Aggregator{log: log, store: store}
}

// Aggregate computes the report for a window and writes its artifact.
// An empty window yields no report and writes nothing, so a previously
// written artifact for the same key is never clobbered with an empty one.
func (a *Aggregator) Aggregate(w Window) (*Report, error) {
	rep, err := a.Compute(w)
	if err != nil || rep == nil {
		return rep, err
	}
	if err := a.store.WriteArtifact(w.ArtifactKey(), []byte(rep.Render())); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	return rep, nil
}

// Compute builds the report for a window without persisting anything.
// Used for on-demand summaries of windows that have not elapsed yet, whose
// artifact key would collide with the completed window sharing the label.
func (a *Aggregator) Compute(w Window) (*Report, error) {
	entries, err := a.log.ReadWindow(w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("read window: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return build(w, entries), nil
}

func build(w Window, entries []dialog.Entry) *Report {
	users := make(map[int64]bool)
	for _, e := range entries {
		users[e.UserID] = true
	}

	k := hourlyHighlights
	if w.Kind == KindDaily {
		k = dailyHighlights
	}

	return &Report{
		Window:       w,
		MessageCount: len(entries),
		UniqueUsers:  len(users),
		TopTerms:     topTerms(entries, topTermCount),
		Highlights:   highlights(entries, k),
	}
}

// topTerms ranks lower-cased whitespace tokens longer than four characters
// by frequency, ties broken by first occurrence.
func topTerms(entries []dialog.Entry, n int) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	idx := 0
	for _, e := range entries {
		for _, tok := range strings.Fields(strings.ToLower(e.Message)) {
			if utf8.RuneCountInString(tok) < minTermRunes {
				continue
			}
			if _, seen := firstSeen[tok]; !seen {
				firstSeen[tok] = idx
				idx++
			}
			counts[tok]++
		}
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return firstSeen[terms[i]] < firstSeen[terms[j]]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

// highlights picks the k longest messages, ties broken by earliest
// timestamp, each rendered with its time and author and truncated for
// display.
func highlights(entries []dialog.Entry, k int) []string {
	ranked := make([]dialog.Entry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		li := utf8.RuneCountInString(ranked[i].Message)
		lj := utf8.RuneCountInString(ranked[j].Message)
		if li != lj {
			return li > lj
		}
		return ranked[i].Timestamp.Before(ranked[j].Timestamp)
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]string, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, fmt.Sprintf("[%s] %s: %s",
			e.Timestamp.Format("15:04"), e.UserName, truncate(e.Message, highlightBudget)))
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// Render produces the persisted artifact text. The output depends only on
// the report's contents, so re-aggregating the same elapsed window writes
// byte-identical artifacts.
func (r *Report) Render() string {
	var sb strings.Builder
	if r.Window.Kind == KindHourly {
		sb.WriteString(fmt.Sprintf("📊 Почасовой отчёт %s %s–%s\n",
			r.Window.Start.Format("2006-01-02"),
			r.Window.Start.Format("15:04"),
			r.Window.End.Format("15:04")))
	} else {
		sb.WriteString(fmt.Sprintf("📊 Дневной отчёт за %s\n", r.Window.End.Format("2006-01-02")))
	}
	sb.WriteString(fmt.Sprintf("Сообщений: %d\n", r.MessageCount))
	sb.WriteString(fmt.Sprintf("Уникальных пользователей: %d\n", r.UniqueUsers))
	if len(r.TopTerms) > 0 {
		sb.WriteString("Частые слова: " + strings.Join(r.TopTerms, ", ") + "\n")
	}
	if len(r.Highlights) > 0 {
		sb.WriteString("Заметные сообщения:\n")
		for _, h := range r.Highlights {
			sb.WriteString("- " + h + "\n")
		}
	}
	return sb.String()
}
