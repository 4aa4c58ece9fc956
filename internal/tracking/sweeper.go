package tracking

import (
	"context"
	"sync"
	"time"

	"convoy/internal/config"
	"convoy/pkg/logger"
)

// Sweeper periodically looks for members who have stopped moving and trims
// trail history. It runs independently of connection handling.
type Sweeper struct {
	hub           *Hub
	sweepInterval time.Duration
	pruneInterval time.Duration
	log           *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(hub *Hub, cfg *config.TrackingConfig, log *logger.Logger) *Sweeper {
	if cfg == nil {
		cfg = config.DefaultTrackingConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		hub:           hub,
		sweepInterval: cfg.SweepInterval,
		pruneInterval: cfg.PruneInterval,
		log:           log,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	if ctx == nil {
		ctx = s.ctx
	}

	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()
	prune := time.NewTicker(s.pruneInterval)
	defer prune.Stop()

	s.log.WithFields(map[string]interface{}{
		"sweep_interval": s.sweepInterval.String(),
		"prune_interval": s.pruneInterval.String(),
	}).Info("Room sweeper started")

	for {
		select {
		case <-sweep.C:
			s.SweepOnce()
		case <-prune.C:
			s.hub.PruneTrails()
		case <-ctx.Done():
			s.log.Info("Room sweeper stopping due to context cancellation")
			return
		case <-s.ctx.Done():
			s.log.Info("Room sweeper stopping")
			return
		}
	}
}

func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

// SweepOnce checks every room concurrently so a slow room cannot hold up
// the others, and returns how many prompts were sent.
func (s *Sweeper) SweepOnce() int {
	codes := s.hub.store.Codes()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			n := s.hub.SweepRoom(code)

			mu.Lock()
			total += n
			mu.Unlock()
		}(code)
	}
	wg.Wait()

	return total
}
