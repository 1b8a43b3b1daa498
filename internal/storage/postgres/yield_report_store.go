package postgres

import (
	"context"
	"fmt"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// YieldReportStore implements storage.YieldReportStore using PostgreSQL.
type YieldReportStore struct {
	pool *Pool
}

// NewYieldReportStore creates a new YieldReportStore.
func NewYieldReportStore(pool *Pool) *YieldReportStore {
	return &YieldReportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.YieldReportStore = (*YieldReportStore)(nil)

const insertYieldReport = `
	INSERT INTO yield_reports (
		report_id, tick_id, protocol, name, type,
		apy, tvl, risk, chain, reported_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10
	)
`

// InsertBulk adds multiple reports atomically. Fails entire batch on any duplicate.
func (s *YieldReportStore) InsertBulk(ctx context.Context, reports []*domain.YieldReport) error {
	if len(reports) == 0 {
		return nil
	}
	for _, r := range reports {
		if err := storage.ValidateYieldReport(r); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range reports {
		_, err := tx.Exec(ctx, insertYieldReport,
			r.ReportID, r.TickID, r.Protocol, r.Name, r.Type,
			r.APY, r.TVL, r.Risk, r.Chain, r.ReportedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert yield report in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (s *YieldReportStore) Recent(ctx context.Context, limit int) ([]*domain.YieldReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT report_id, tick_id, protocol, name, type,
		       apy, tvl, risk, chain, reported_at
		FROM yield_reports
		ORDER BY reported_at DESC, report_id
		LIMIT $1
	`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query yield reports: %w", err)
	}
	defer rows.Close()

	var result []*domain.YieldReport
	for rows.Next() {
		var r domain.YieldReport
		err := rows.Scan(
			&r.ReportID, &r.TickID, &r.Protocol, &r.Name, &r.Type,
			&r.APY, &r.TVL, &r.Risk, &r.Chain, &r.ReportedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan yield report: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}
