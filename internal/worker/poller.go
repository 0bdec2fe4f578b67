package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/branchpay/transfer_processor/internal/core/domain"
	portsrepo "github.com/branchpay/transfer_processor/internal/core/ports/repositories"
	portssvc "github.com/branchpay/transfer_processor/internal/core/ports/services"
	"github.com/branchpay/transfer_processor/internal/middleware"
	"github.com/google/uuid"
)

// Poller is the intake side of the processor: it polls for pending transfer
// requests and hands each one to the processor exactly once per dispatch.
// Delivery is at-least-once overall; the processor is redelivery-safe, so the
// poller only needs to avoid re-dispatching a request it already has in
// flight.
type Poller struct {
	transferRepo portsrepo.TransferRepository
	processor    portssvc.TransferSvcFacade
	logger       *slog.Logger
	interval     time.Duration
	workers      int
	batchSize    int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewPoller creates a poller with the given worker count, poll interval and
// claim batch size.
func NewPoller(transferRepo portsrepo.TransferRepository, processor portssvc.TransferSvcFacade, logger *slog.Logger, interval time.Duration, workers, batchSize int) *Poller {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 2 * workers
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		transferRepo: transferRepo,
		processor:    processor,
		logger:       logger,
		interval:     interval,
		workers:      workers,
		batchSize:    batchSize,
		inFlight:     make(map[string]struct{}),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight work to finish.
func (p *Poller) Run(ctx context.Context) {
	jobs := make(chan domain.TransferRequest)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go p.workerLoop(ctx, jobs, &wg)
	}
	p.logger.Info("Intake poller started", slog.Int("workers", p.workers), slog.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.dispatch(ctx, jobs)
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			p.logger.Info("Intake poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// dispatch claims a batch of pending requests and queues the ones not already
// in flight.
func (p *Poller) dispatch(ctx context.Context, jobs chan<- domain.TransferRequest) {
	requests, err := p.transferRepo.FindPending(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("Failed to poll pending transfers", slog.String("error", err.Error()))
		return
	}

	for _, req := range requests {
		if !p.markInFlight(req.TransferID) {
			continue
		}
		select {
		case jobs <- req:
		case <-ctx.Done():
			p.clearInFlight(req.TransferID)
			return
		}
	}
}

func (p *Poller) workerLoop(ctx context.Context, jobs <-chan domain.TransferRequest, wg *sync.WaitGroup) {
	defer wg.Done()
	for req := range jobs {
		invocationLogger := p.logger.With(
			slog.String("invocation_id", uuid.NewString()),
			slog.String("transfer_id", req.TransferID),
		)
		// Shutdown lets in-flight transfers run to their terminal state rather
		// than aborting them mid-transaction.
		invocationCtx := middleware.WithLogger(context.WithoutCancel(ctx), invocationLogger)
		if err := p.processor.ProcessTransfer(invocationCtx, req); err != nil {
			// Terminal write failed; the request stays pending and will be
			// picked up again on a later poll.
			invocationLogger.Error("Transfer invocation failed", slog.String("error", err.Error()))
		}
		p.clearInFlight(req.TransferID)
	}
}

func (p *Poller) markInFlight(transferID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.inFlight[transferID]; exists {
		return false
	}
	p.inFlight[transferID] = struct{}{}
	return true
}

func (p *Poller) clearInFlight(transferID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, transferID)
}
