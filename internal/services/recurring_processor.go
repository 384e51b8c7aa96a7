package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// RecurringProcessorConfig holds configuration for the recurring-expense processor
type RecurringProcessorConfig struct {
	// Interval is how often due definitions are scanned (default: 1h)
	Interval time.Duration
}

// DefaultRecurringProcessorConfig returns sensible defaults
func DefaultRecurringProcessorConfig() RecurringProcessorConfig {
	return RecurringProcessorConfig{
		Interval: 1 * time.Hour,
	}
}

// RecurringProcessor materializes due recurring expenses into real expense
// rows for every user. Created expenses go through the ledger, so they are
// queued for export and announced on the bus like any manual entry.
type RecurringProcessor struct {
	storage storage.Store
	ledger  *Ledger
	config  RecurringProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRecurringProcessor creates a new recurring-expense processor
func NewRecurringProcessor(store storage.Store, ledger *Ledger, config RecurringProcessorConfig) *RecurringProcessor {
	return &RecurringProcessor{
		storage: store,
		ledger:  ledger,
		config:  config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *RecurringProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("recurring processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Recurring processor started",
		"interval", p.config.Interval)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *RecurringProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	// Signal stop
	close(p.stopCh)

	// Wait for completion or context cancellation
	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Recurring processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *RecurringProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// runLoop is the main processing loop
func (p *RecurringProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Process immediately on startup
	if _, err := p.ProcessDue(ctx, time.Now()); err != nil {
		slog.ErrorContext(ctx, "Recurring processing failed", "error", err)
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessDue(ctx, time.Now()); err != nil {
				slog.ErrorContext(ctx, "Recurring processing failed", "error", err)
			}
		}
	}
}

// ProcessDue scans every user's recurring definitions and creates an
// expense for each one that is due at now. It returns the number of
// expenses created.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.ledger == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	userIDs, err := p.storage.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring expenses",
		"users", len(userIDs),
		"processing_date", now.Format("2006-01-02"))

	processedCount := 0
	checkedCount := 0

	for _, userID := range userIDs {
		definitions, err := p.storage.ListRecurring(ctx, userID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to list recurring expenses",
				"user_id", userID,
				"error", err)
			continue
		}

		for _, re := range definitions {
			checkedCount++

			if !p.inWindow(re, now) {
				continue
			}

			checker, err := GetDuenessChecker(re.Every)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to check recurring expense",
					"id", re.ID,
					"error", err)
				continue
			}

			if !checker.IsDue(re.LastExecution, now, re.StartDate) {
				continue
			}

			expense := core.Expense{
				UserID:      re.UserID,
				Date:        core.Date{Time: now},
				Description: re.Description,
				Amount:      re.Amount,
				CategoryID:  re.CategoryID,
			}

			created, err := p.ledger.CreateExpense(ctx, expense)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to create expense from recurring template",
					"recurrent_id", re.ID,
					"description", re.Description,
					"error", err)
				continue
			}

			if err := p.storage.MarkRecurringExecuted(ctx, re.ID, now); err != nil {
				slog.ErrorContext(ctx, "Failed to update last execution date",
					"recurrent_id", re.ID,
					"error", err)
				// Continue anyway - the expense was created successfully
			}

			processedCount++
			slog.InfoContext(ctx, "Created expense from recurring template",
				"recurrent_id", re.ID,
				"expense_id", created.ID,
				"amount_cents", re.Amount.Cents,
				"frequency", re.Every)
		}
	}

	slog.InfoContext(ctx, "Recurring expense processing complete",
		"processed", processedCount,
		"total_checked", checkedCount)

	return processedCount, nil
}

// inWindow reports whether now falls between the definition's start date
// and its optional end date. The end date is inclusive: a definition
// ending today still materializes today.
func (p *RecurringProcessor) inWindow(re core.RecurrentExpense, now time.Time) bool {
	if now.Before(re.StartDate.Time) {
		return false
	}
	if !re.EndDate.IsZero() && !now.Before(re.EndDate.AddDate(0, 0, 1)) {
		return false
	}
	return true
}
