// Package service drives report generation as a cancellable background
// task and answers the synchronous status/result queries around it.
package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/connector"
	"github.com/coinfolio/taxledger-backend/internal/ledger"
	"github.com/coinfolio/taxledger-backend/internal/model"
	"github.com/coinfolio/taxledger-backend/internal/pricing"
	"github.com/coinfolio/taxledger-backend/internal/repository"
)

// AdapterFactory builds the location adapters for one run. Resolving
// adapters per run picks up credential changes without restarting.
type AdapterFactory func(ctx context.Context) ([]connector.Adapter, error)

// ReportService owns the per-user run registry. The registry is the
// single-flight guard: at most one Running run exists per user, enforced
// here at acceptance time. Each run's ledger and price cache belong to
// that run's goroutine alone.
type ReportService struct {
	mu     sync.Mutex
	runs   map[string]*reportRun
	active map[string]string // userID -> runID of the non-terminal run

	adapters   AdapterFactory
	source     pricing.Source
	aliases    map[string]string
	priceCache pricing.CacheStore
	reportRepo *repository.ReportRepository
}

// reportRun is the mutable state of one generation task. All fields of
// state are guarded by mu; the goroutine mutates, API reads snapshot.
type reportRun struct {
	mu     sync.Mutex
	state  model.ReportRun
	cancel context.CancelFunc
}

// NewReportService creates the orchestrator. priceCache may be nil.
func NewReportService(
	adapters AdapterFactory,
	source pricing.Source,
	aliases map[string]string,
	priceCache pricing.CacheStore,
	reportRepo *repository.ReportRepository,
) *ReportService {
	return &ReportService{
		runs:       make(map[string]*reportRun),
		active:     make(map[string]string),
		adapters:   adapters,
		source:     source,
		aliases:    aliases,
		priceCache: priceCache,
		reportRepo: reportRepo,
	}
}

// StartReport accepts a generation request and launches the background
// task. It fails with apperrors.ErrReportInProgress while another run
// for the same user is still live; requests are never queued. Accepting
// a run discards the user's previous terminal runs.
func (s *ReportService) StartReport(userID string, start, end time.Time, policy model.TaxPolicy) (string, error) {
	if !start.Before(end) {
		return "", apperrors.ErrInvalidDateRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if activeID, ok := s.active[userID]; ok {
		if run := s.runs[activeID]; run != nil && !run.status().Terminal() {
			return "", apperrors.ErrReportInProgress
		}
	}

	// Supersede: previous runs for this user are dropped from the
	// registry, not queued behind the new one.
	for id, run := range s.runs {
		if run.userID() == userID {
			delete(s.runs, id)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &reportRun{
		state: model.ReportRun{
			ID:        uuid.New().String(),
			UserID:    userID,
			StartTime: start.UTC(),
			EndTime:   end.UTC(),
			Status:    model.RunPending,
			Policy:    policy,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	s.runs[run.state.ID] = run
	s.active[userID] = run.state.ID

	go s.execute(ctx, run)

	return run.state.ID, nil
}

// GetStatus returns a snapshot of the run without its records.
func (s *ReportService) GetStatus(id string) (model.ReportRun, error) {
	run, err := s.find(id)
	if err != nil {
		return model.ReportRun{}, err
	}
	snap := run.snapshot()
	snap.Records = nil
	return snap, nil
}

// Cancel requests cooperative cancellation of a run. Cancellation lands
// at the next event boundary; an already-terminal run is left untouched.
func (s *ReportService) Cancel(id string) error {
	run, err := s.find(id)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// GetResult returns the full report of a Done run. Live runs report
// ErrReportNotReady; failed and cancelled runs surface their terminal
// condition. Runs evicted from the registry are served from storage.
func (s *ReportService) GetResult(id string) (model.ReportRun, error) {
	run, err := s.find(id)
	if err != nil {
		if persisted, repoErr := s.reportRepo.GetReport(id); repoErr == nil {
			return *persisted, nil
		}
		return model.ReportRun{}, err
	}

	snap := run.snapshot()
	switch snap.Status {
	case model.RunDone:
		return snap, nil
	case model.RunFailed:
		return model.ReportRun{}, fmt.Errorf("%w: %s", apperrors.ErrReportFailed, snap.Error)
	case model.RunCancelled:
		return model.ReportRun{}, apperrors.ErrReportCancelled
	default:
		return model.ReportRun{}, apperrors.ErrReportNotReady
	}
}

// ListReports returns persisted report summaries.
func (s *ReportService) ListReports() ([]model.ReportRun, error) {
	return s.reportRepo.ListReports()
}

func (s *ReportService) find(id string) (*reportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.ErrRunNotFound
	}
	return run, nil
}

// execute runs the full pipeline: normalize, pre-count, match, total,
// persist. It owns the run's ledger and price cache exclusively.
func (s *ReportService) execute(ctx context.Context, run *reportRun) {
	defer run.cancel()
	run.setStatus(model.RunRunning)

	adapters, err := s.adapters(ctx)
	if err != nil {
		s.finish(run, model.RunFailed, fmt.Errorf("building adapters: %w", err))
		return
	}

	warn := run.addWarning
	normalizer := connector.NewNormalizer(adapters, connector.WarnFunc(warn))

	state := run.snapshot()

	// The full history up to the range end establishes cost basis for
	// disposals inside the range; the ledger reports only in-range
	// disposals.
	events, err := normalizer.Normalize(ctx, time.Unix(0, 0).UTC(), state.EndTime)
	if err != nil {
		if ctx.Err() != nil {
			s.finish(run, model.RunCancelled, nil)
			return
		}
		s.finish(run, model.RunFailed, err)
		return
	}

	// The merged slice is materialized, so the pre-count is exact.
	total := len(events)

	resolver := pricing.NewResolver(s.source, s.aliases, s.priceCache)
	led := ledger.New(state.Policy, resolver, state.StartTime, ledger.WarnFunc(warn))

	for i, ev := range events {
		// Cancellation is checked between events only; no event is
		// ever half-applied.
		if ctx.Err() != nil {
			s.finish(run, model.RunCancelled, nil)
			return
		}
		if err := led.Process(ctx, ev); err != nil {
			s.finish(run, model.RunFailed, err)
			return
		}
		run.setProgress(progressOf(i+1, total))
	}

	records := led.Records()
	run.setResult(records, totalsOf(records))

	final := run.snapshot()
	if err := s.reportRepo.SaveReport(&final); err != nil {
		// Keep the computed records on the run for diagnostics; the
		// report itself is not usable.
		s.finish(run, model.RunFailed, fmt.Errorf("%w: %w", apperrors.ErrFailedToPersistReport, err))
		return
	}

	s.finish(run, model.RunDone, nil)
}

// finish moves a run to its terminal state and releases the user's
// single-flight slot.
func (s *ReportService) finish(run *reportRun, status model.RunStatus, err error) {
	run.mu.Lock()
	run.state.Status = status
	run.state.CompletedAt = time.Now().UTC()
	switch status {
	case model.RunDone:
		run.state.Progress = 100
	case model.RunCancelled:
		// Partial results are discarded; a cancelled run exposes no totals.
		run.state.Records = nil
		run.state.Totals = model.ReportTotals{}
	case model.RunFailed:
		if err != nil {
			run.state.Error = err.Error()
		}
	}
	userID, runID := run.state.UserID, run.state.ID
	run.mu.Unlock()

	if err != nil {
		log.Printf("report run %s failed: %v", runID, err)
	}

	s.mu.Lock()
	if s.active[userID] == runID {
		delete(s.active, userID)
	}
	s.mu.Unlock()
}

// progressOf computes processed/total as a percentage, clamped to
// [0, 99] until completion sets 100.
func progressOf(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := processed * 100 / total
	if p > 99 {
		p = 99
	}
	return p
}

// totalsOf sums the report totals from the emitted records. Per-asset
// totals cover all records for balance tracking; the taxable total only
// counts records the policy classified as taxable.
func totalsOf(records []model.GainLossRecord) model.ReportTotals {
	totals := model.ReportTotals{
		PerAsset: make(map[string]decimal.Decimal),
	}
	for _, rec := range records {
		totals.TotalGainLoss = totals.TotalGainLoss.Add(rec.GainLoss)
		if rec.Taxable {
			totals.TaxableGainLoss = totals.TaxableGainLoss.Add(rec.GainLoss)
		}
		totals.PerAsset[rec.Asset] = totals.PerAsset[rec.Asset].Add(rec.GainLoss)
	}
	return totals
}

// --- reportRun accessors ---

func (r *reportRun) snapshot() model.ReportRun {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.state
	snap.Records = append([]model.GainLossRecord(nil), r.state.Records...)
	snap.Warnings = append([]string(nil), r.state.Warnings...)
	if r.state.Totals.PerAsset != nil {
		perAsset := make(map[string]decimal.Decimal, len(r.state.Totals.PerAsset))
		for k, v := range r.state.Totals.PerAsset {
			perAsset[k] = v
		}
		snap.Totals.PerAsset = perAsset
	}
	return snap
}

func (r *reportRun) status() model.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Status
}

func (r *reportRun) userID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.UserID
}

func (r *reportRun) setStatus(status model.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Status = status
}

// setProgress keeps progress monotonically non-decreasing.
func (r *reportRun) setProgress(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p > r.state.Progress {
		r.state.Progress = p
	}
}

func (r *reportRun) setResult(records []model.GainLossRecord, totals model.ReportTotals) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Records = records
	r.state.Totals = totals
}

func (r *reportRun) addWarning(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Warnings = append(r.state.Warnings, fmt.Sprintf(format, args...))
}
