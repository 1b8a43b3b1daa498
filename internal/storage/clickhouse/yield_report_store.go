package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// YieldReportStore implements storage.YieldReportStore using ClickHouse.
// It serves as the analytics copy of yield_reports.
type YieldReportStore struct {
	conn *Conn
}

// NewYieldReportStore creates a new YieldReportStore.
func NewYieldReportStore(conn *Conn) *YieldReportStore {
	return &YieldReportStore{conn: conn}
}

// Compile-time interface check.
var _ storage.YieldReportStore = (*YieldReportStore)(nil)

// InsertBulk appends reports in one batch. Fails entire batch on any duplicate report_id.
func (s *YieldReportStore) InsertBulk(ctx context.Context, reports []*domain.YieldReport) error {
	if len(reports) == 0 {
		return nil
	}

	ids := make([]string, 0, len(reports))
	seen := make(map[string]struct{}, len(reports))
	for _, r := range reports {
		if err := storage.ValidateYieldReport(r); err != nil {
			return err
		}
		if _, exists := seen[r.ReportID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.ReportID] = struct{}{}
		ids = append(ids, r.ReportID)
	}

	// MergeTree does not enforce uniqueness, so check explicitly.
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM yield_reports WHERE report_id IN (?)`, ids).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO yield_reports (
			report_id, tick_id, protocol, name, type,
			apy, tvl, risk, chain, reported_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range reports {
		err = batch.Append(
			r.ReportID, r.TickID, r.Protocol, r.Name, r.Type,
			r.APY, r.TVL, r.Risk, r.Chain, r.ReportedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (s *YieldReportStore) Recent(ctx context.Context, limit int) ([]*domain.YieldReport, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT report_id, tick_id, protocol, name, type,
		       apy, tvl, risk, chain, reported_at
		FROM yield_reports FINAL
		ORDER BY reported_at DESC, report_id
		LIMIT ?
	`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query yield reports: %w", err)
	}
	defer rows.Close()

	return scanYieldReports(rows)
}

// APYByProtocol returns the average APY per protocol over reports since the given time.
func (s *YieldReportStore) APYByProtocol(ctx context.Context, since time.Time) (map[string]float64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT protocol, avg(apy)
		FROM yield_reports FINAL
		WHERE reported_at >= ?
		GROUP BY protocol
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query apy by protocol: %w", err)
	}
	defer rows.Close()

	result := make(map[string]float64)
	for rows.Next() {
		var protocol string
		var apy float64
		if err := rows.Scan(&protocol, &apy); err != nil {
			return nil, fmt.Errorf("scan apy row: %w", err)
		}
		result[protocol] = apy
	}
	return result, rows.Err()
}

// chRows is the subset of driver.Rows used by scan helpers.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanYieldReports(rows chRows) ([]*domain.YieldReport, error) {
	var reports []*domain.YieldReport

	for rows.Next() {
		var r domain.YieldReport
		err := rows.Scan(
			&r.ReportID, &r.TickID, &r.Protocol, &r.Name, &r.Type,
			&r.APY, &r.TVL, &r.Risk, &r.Chain, &r.ReportedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan yield report row: %w", err)
		}
		reports = append(reports, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate yield report rows: %w", err)
	}
	return reports, nil
}
