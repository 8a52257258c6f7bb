package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"chat-relay/internal/report"
	"chat-relay/internal/storage"
)

const stateArtifact = "scheduler_state"

// persisted detector state, so a restart inside a bucket does not re-fire
// an already aggregated window.
type state struct {
	LastHourly string `json:"last_hourly"`
	LastDaily  string `json:"last_daily"`
}

// Scheduler polls the wall clock on a fixed cadence and triggers report
// aggregation when an hour or day bucket completes.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	loc        *time.Location
	tick       time.Duration
	det        *detector
	store      storage.Store
	reportFunc func(ctx context.Context, w report.Window) error
	now        func() time.Time
}

func New(loc *time.Location, tick time.Duration, cutoffHour int, store storage.Store) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		ctx:    ctx,
		cancel: cancel,
		loc:    loc,
		tick:   tick,
		det:    newDetector(cutoffHour),
		store:  store,
		now:    time.Now,
	}
}

// SetReportFunc sets the aggregation callback invoked once per completed
// bucket.
func (s *Scheduler) SetReportFunc(f func(ctx context.Context, w report.Window) error) {
	s.reportFunc = f
}

func (s *Scheduler) Start() error {
	if s.reportFunc == nil {
		log.Println("⚠️ Report function not set, scheduler will not generate reports")
		return nil
	}

	s.loadState()

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.tick), s.onTick); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("📅 Scheduler started - polling every %s, daily cutoff at %02d:00", s.tick, s.det.cutoffHour)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}

// onTick advances the bucket detector and aggregates each window that
// became due. A failed aggregation is logged and its bucket is still
// consumed; the window is skipped, not retried.
func (s *Scheduler) onTick() {
	now := s.now().In(s.loc)
	due := s.det.advance(now)
	for _, w := range due {
		log.Printf("🕘 Triggered %s report for window %s — %s", w.Kind, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
		if err := s.reportFunc(s.ctx, w); err != nil {
			log.Printf("❌ %s report generation failed: %v", w.Kind, err)
		}
	}
	s.saveState()
}

func (s *Scheduler) loadState() {
	if s.store == nil {
		return
	}
	data, err := s.store.ReadArtifact(stateArtifact)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("failed to load scheduler state: %v", err)
		}
		return
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		log.Printf("failed to decode scheduler state: %v", err)
		return
	}
	s.det.lastHourly = st.LastHourly
	s.det.lastDaily = st.LastDaily
}

func (s *Scheduler) saveState() {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(state{LastHourly: s.det.lastHourly, LastDaily: s.det.lastDaily})
	if err != nil {
		return
	}
	if err := s.store.WriteArtifact(stateArtifact, data); err != nil {
		log.Printf("failed to save scheduler state: %v", err)
	}
}
