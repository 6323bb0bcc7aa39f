package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/model"
)

// ReportRepository persists finished report runs and their gain/loss
// records. Writes go through one *sql.DB, which serializes them for the
// single-writer sqlite database.
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// SaveReport stores a terminal report run with all its records in one
// transaction.
func (r *ReportRepository) SaveReport(run *model.ReportRun) error {
	policy, err := json.Marshal(run.Policy)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	perAsset, err := json.Marshal(run.Totals.PerAsset)
	if err != nil {
		return fmt.Errorf("failed to encode per-asset totals: %w", err)
	}
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO report (id, user_id, start_time, end_time, status, progress, policy,
			total_gain_loss, taxable_gain_loss, per_asset, warnings, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.UserID,
		run.StartTime.UTC().Format(time.RFC3339),
		run.EndTime.UTC().Format(time.RFC3339),
		string(run.Status),
		run.Progress,
		string(policy),
		run.Totals.TotalGainLoss.String(),
		run.Totals.TaxableGainLoss.String(),
		string(perAsset),
		string(warnings),
		run.Error,
		run.CreatedAt.UTC().Format(time.RFC3339),
		run.CompletedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO gain_loss_record (id, report_id, seq, asset, amount, proceeds, cost_basis,
			gain_loss, taxable, bucket, holding_period_days, acquired_at, disposed_at,
			location, crypto_to_crypto, margin_derived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for seq, rec := range run.Records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := stmt.Exec(
			id,
			run.ID,
			seq,
			rec.Asset,
			rec.Amount.String(),
			rec.Proceeds.String(),
			rec.CostBasis.String(),
			rec.GainLoss.String(),
			rec.Taxable,
			string(rec.Bucket),
			rec.HoldingPeriodDays,
			rec.AcquiredAt.UTC().Format(time.RFC3339),
			rec.DisposedAt.UTC().Format(time.RFC3339),
			rec.Location,
			rec.CryptoToCrypto,
			rec.MarginDerived,
		)
		if err != nil {
			return fmt.Errorf("failed to insert gain/loss record %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// GetReport loads a persisted report with its records in stored order.
func (r *ReportRepository) GetReport(id string) (*model.ReportRun, error) {
	row := r.db.QueryRow(`
		SELECT id, user_id, start_time, end_time, status, progress, policy,
			total_gain_loss, taxable_gain_loss, per_asset, warnings, error, created_at, completed_at
		FROM report
		WHERE id = ?
	`, id)

	run, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrReportNotPersisted
		}
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT id, asset, amount, proceeds, cost_basis, gain_loss, taxable, bucket,
			holding_period_days, acquired_at, disposed_at, location, crypto_to_crypto, margin_derived
		FROM gain_loss_record
		WHERE report_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query gain/loss records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.GainLossRecord
		var amount, proceeds, costBasis, gainLoss, acquiredAt, disposedAt, bucket string

		err := rows.Scan(
			&rec.ID,
			&rec.Asset,
			&amount,
			&proceeds,
			&costBasis,
			&gainLoss,
			&rec.Taxable,
			&bucket,
			&rec.HoldingPeriodDays,
			&acquiredAt,
			&disposedAt,
			&rec.Location,
			&rec.CryptoToCrypto,
			&rec.MarginDerived,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gain/loss record: %w", err)
		}

		if rec.Amount, err = ParseDecimal(amount); err != nil {
			return nil, err
		}
		if rec.Proceeds, err = ParseDecimal(proceeds); err != nil {
			return nil, err
		}
		if rec.CostBasis, err = ParseDecimal(costBasis); err != nil {
			return nil, err
		}
		if rec.GainLoss, err = ParseDecimal(gainLoss); err != nil {
			return nil, err
		}
		if rec.AcquiredAt, err = ParseTime(acquiredAt); err != nil {
			return nil, err
		}
		if rec.DisposedAt, err = ParseTime(disposedAt); err != nil {
			return nil, err
		}
		rec.Bucket = model.TaxBucket(bucket)

		run.Records = append(run.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gain/loss records: %w", err)
	}

	return run, nil
}

// ListReports returns persisted report summaries, newest first, without
// their records.
func (r *ReportRepository) ListReports() ([]model.ReportRun, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, start_time, end_time, status, progress, policy,
			total_gain_loss, taxable_gain_loss, per_asset, warnings, error, created_at, completed_at
		FROM report
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []model.ReportRun
	for rows.Next() {
		run, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return reports, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (*model.ReportRun, error) {
	var run model.ReportRun
	var startTime, endTime, status, policy, totalGL, taxableGL, perAsset, createdAt, completedAt string
	var warnings sql.NullString
	var errMsg sql.NullString

	err := s.Scan(
		&run.ID,
		&run.UserID,
		&startTime,
		&endTime,
		&status,
		&run.Progress,
		&policy,
		&totalGL,
		&taxableGL,
		&perAsset,
		&warnings,
		&errMsg,
		&createdAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	run.Status = model.RunStatus(status)
	run.Error = errMsg.String

	if run.StartTime, err = ParseTime(startTime); err != nil {
		return nil, err
	}
	if run.EndTime, err = ParseTime(endTime); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = ParseTime(completedAt); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(policy), &run.Policy); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	if err = json.Unmarshal([]byte(perAsset), &run.Totals.PerAsset); err != nil {
		return nil, fmt.Errorf("failed to decode per-asset totals: %w", err)
	}
	if warnings.Valid && warnings.String != "" {
		if err = json.Unmarshal([]byte(warnings.String), &run.Warnings); err != nil {
			return nil, fmt.Errorf("failed to decode warnings: %w", err)
		}
	}
	if run.Totals.TotalGainLoss, err = ParseDecimal(totalGL); err != nil {
		return nil, err
	}
	if run.Totals.TaxableGainLoss, err = ParseDecimal(taxableGL); err != nil {
		return nil, err
	}

	return &run, nil
}
