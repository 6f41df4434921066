package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"custfin/internal/core"
	"custfin/internal/finance"
	"custfin/internal/sheets"
)

// ReconcileProcessorConfig holds configuration for the reconcile processor
type ReconcileProcessorConfig struct {
	// Interval is how often figures are checked (default: 1h)
	Interval time.Duration

	// Apply adds pending revenue to actual revenue instead of only reporting it.
	Apply bool
}

// DefaultReconcileProcessorConfig returns sensible defaults
func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{Interval: time.Hour}
}

// ReconcileProcessor periodically applies revenue left pending by failed
// writes and, when an exporter is set, exports the overview.
type ReconcileProcessor struct {
	service  *FinanceService
	exporter sheets.OverviewExporter
	config   ReconcileProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconcileProcessor(service *FinanceService, exporter sheets.OverviewExporter, config ReconcileProcessorConfig) *ReconcileProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultReconcileProcessorConfig().Interval
	}
	return &ReconcileProcessor{
		service:  service,
		exporter: exporter,
		config:   config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Reconcile processor started",
		"interval", p.config.Interval,
		"apply", p.config.Apply)
	return nil
}

// Stop gracefully stops the processor and waits for the current run.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Reconcile processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}
}

func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce reconciles once and exports the overview. Failures are logged.
func (p *ReconcileProcessor) RunOnce(ctx context.Context) {
	found, err := p.service.Reconcile(ctx, p.config.Apply)
	if err != nil {
		slog.ErrorContext(ctx, "Reconcile failed", "error", err)
	}
	for _, d := range found {
		slog.WarnContext(ctx, "Revenue pending on customer",
			"customer_id", d.CustomerID,
			"customer", d.Name,
			"stored", d.Stored.Display(),
			"pending", d.Pending.Display(),
			"transactions", len(d.Transactions),
			"applied", p.config.Apply && err == nil)
	}

	if p.exporter == nil {
		return
	}
	if err := p.export(ctx); err != nil {
		slog.ErrorContext(ctx, "Overview export failed", "error", err)
	}
}

// export writes the overview an administrator sees on the active tab.
func (p *ReconcileProcessor) export(ctx context.Context) error {
	roster, err := p.service.LoadRoster(ctx)
	if err != nil {
		return err
	}
	s := finance.Reduce(finance.NewState(core.Actor{Role: core.RoleAdmin}), finance.Loaded{
		Customers:    roster.Customers,
		Transactions: roster.Transactions,
		Profiles:     roster.Profiles,
	})
	v := finance.Derive(s)
	if err := p.exporter.ExportOverview(ctx, v.Rows, v.Summary); err != nil {
		return fmt.Errorf("export overview: %w", err)
	}
	slog.InfoContext(ctx, "Overview exported", "rows", len(v.Rows), "balance", v.Summary.Balance.Display())
	return nil
}
