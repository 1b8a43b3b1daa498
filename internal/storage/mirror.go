package storage

import (
	"context"
	"log"

	"solana-yield-agent/internal/domain"
)

// MirroredYieldReportStore writes to a primary store and copies every accepted
// batch into a secondary analytics sink. Reads are served by the primary.
// Mirror failures are logged and never fail the write.
type MirroredYieldReportStore struct {
	primary YieldReportStore
	mirror  YieldReportStore
	logger  *log.Logger
}

// NewMirroredYieldReportStore creates a mirrored store. A nil mirror returns primary unchanged.
func NewMirroredYieldReportStore(primary, mirror YieldReportStore, logger *log.Logger) YieldReportStore {
	if mirror == nil {
		return primary
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[storage] ", log.LstdFlags)
	}
	return &MirroredYieldReportStore{primary: primary, mirror: mirror, logger: logger}
}

// InsertBulk writes to the primary, then best-effort to the mirror.
func (s *MirroredYieldReportStore) InsertBulk(ctx context.Context, reports []*domain.YieldReport) error {
	if err := s.primary.InsertBulk(ctx, reports); err != nil {
		return err
	}
	if err := s.mirror.InsertBulk(ctx, reports); err != nil {
		s.logger.Printf("WARN: mirror yield reports (%d rows): %v", len(reports), err)
	}
	return nil
}

// Recent reads from the primary.
func (s *MirroredYieldReportStore) Recent(ctx context.Context, limit int) ([]*domain.YieldReport, error) {
	return s.primary.Recent(ctx, limit)
}
