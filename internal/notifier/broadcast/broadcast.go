// Package broadcast fans one announcement out to many subscribers.
// Used by the admin /announce command; regular reminders go through the
// notifier pipeline instead.
package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

type Config struct {
	Enabled    bool
	Workers    int
	RatePerSec int
	RetryMax   int
}

type job struct {
	id      string
	targets []kit.ChatTarget
	text    string
	opt     *kit.SendOptions
}

// JobStatus tracks one announcement's progress for /announce_status.
type JobStatus struct {
	ID        string
	Total     int
	Done      int
	Failed    int
	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
}

// Service delivers announcement jobs with a worker pool behind a rate
// limiter. Jobs survive Stop/Start cycles in the queue; statuses are
// kept in a bounded in-memory map.
type Service struct {
	mu sync.Mutex

	cfg     Config
	adapter kit.Adapter
	log     logx.Logger

	limiter   *rate.Limiter
	queue     chan job
	runCtx    context.Context
	runCancel context.CancelFunc
	stopCh    chan struct{}
	stopDone  chan struct{}
	workerWG  sync.WaitGroup

	statusMu  sync.RWMutex
	status    map[string]*JobStatus
	statusMax int
	statusTTL time.Duration
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	return &Service{
		cfg:       cfg,
		adapter:   adapter,
		log:       log,
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
		queue:     make(chan job, 64),
		status:    map[string]*JobStatus{},
		statusMax: 100,
		statusTTL: 24 * time.Hour,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it (prevents double pools).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	// keep queue across restarts (jobs remain pending)
	queue := s.queue
	stopCh := s.stopCh
	runCtx := s.runCtx

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in broadcast worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.log.Info("broadcast started", logx.Int("workers", workers))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// Announce enqueues one fan-out job and returns its id for status
// queries. A full queue fails the job immediately.
func (s *Service) Announce(targets []kit.ChatTarget, text string, opt *kit.SendOptions) string {
	now := time.Now()
	id := fmt.Sprintf("ann:%d", now.UnixNano())
	s.pruneStatus(now)
	s.statusMu.Lock()
	s.status[id] = &JobStatus{ID: id, Total: len(targets), CreatedAt: now}
	s.statusMu.Unlock()

	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	select {
	case q <- job{id: id, targets: targets, text: text, opt: opt}:
		s.log.Debug("announcement enqueued", logx.String("job", id), logx.Int("total", len(targets)))
	default:
		s.log.Warn("broadcast queue full, dropping announcement", logx.String("job", id))
		s.failAll(id)
	}
	return id
}

// Status returns a copy of the job's progress.
func (s *Service) Status(id string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job) {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execJob(ctx, j)
		}
	}
}

func (s *Service) execJob(ctx context.Context, j job) {
	start := time.Now()
	s.setRunning(j.id)
	s.log.Info("announcement started", logx.String("job", j.id), logx.Int("total", len(j.targets)))

	for _, t := range j.targets {
		if err := s.sendOne(ctx, j.id, t, j.text, j.opt); err != nil {
			s.markFail(j.id)
		}
		s.markDone(j.id)
	}
	s.finish(j.id)

	st, ok := s.Status(j.id)
	if ok && st.Failed > 0 {
		s.log.Warn("announcement finished with failures",
			logx.String("job", j.id), logx.Int("total", st.Total), logx.Int("failed", st.Failed),
			logx.Duration("dur", time.Since(start)))
		return
	}
	s.log.Info("announcement finished", logx.String("job", j.id), logx.Duration("dur", time.Since(start)))
}

func (s *Service) sendOne(ctx context.Context, jobID string, t kit.ChatTarget, text string, opt *kit.SendOptions) error {
	// Snapshot mutable dependencies to avoid races with Apply().
	s.mu.Lock()
	lim := s.limiter
	retry := s.cfg.RetryMax
	adapter := s.adapter
	s.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	var last error
	for i := 0; i <= retry; i++ {
		_, err := adapter.SendText(ctx, t, text, opt)
		if err == nil {
			return nil
		}
		last = err
		if i == retry {
			break
		}
		delay := time.Duration(200+100*i) * time.Millisecond
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return ctx.Err()
		case <-tmr.C:
		}
	}
	if last != nil {
		s.log.Warn("announcement send failed", logx.String("job", jobID), logx.Int64("chat_id", t.ChatID), logx.Err(last))
	}
	return last
}

func (s *Service) setRunning(id string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		st.StartedAt = time.Now()
		st.Running = true
	}
}

func (s *Service) markDone(id string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		st.Done++
	}
}

func (s *Service) markFail(id string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		st.Failed++
	}
}

func (s *Service) failAll(id string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		st.DoneAt = time.Now()
		st.Failed = st.Total
	}
}

func (s *Service) finish(id string) {
	now := time.Now()
	s.statusMu.Lock()
	if st := s.status[id]; st != nil {
		st.DoneAt = now
		st.Running = false
	}
	s.statusMu.Unlock()
	s.pruneStatus(now)
}

// pruneStatus drops finished entries past their TTL and caps the map.
func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for id, st := range s.status {
		if st == nil {
			delete(s.status, id)
			continue
		}
		if !st.Running && !st.DoneAt.IsZero() && now.Sub(st.DoneAt) > s.statusTTL {
			delete(s.status, id)
		}
	}
	for len(s.status) > s.statusMax {
		var oldest string
		var oldestAt time.Time
		for id, st := range s.status {
			if oldest == "" || st.CreatedAt.Before(oldestAt) {
				oldest, oldestAt = id, st.CreatedAt
			}
		}
		if oldest == "" {
			break
		}
		delete(s.status, oldest)
	}
}
