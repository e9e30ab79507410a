package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type snapshotExporter interface {
	Export(ctx context.Context) (string, error)
}

// NewFinanceSnapshotJob exports platform totals and payouts to the warehouse.
func NewFinanceSnapshotJob(logg *logger.Logger, exporter snapshotExporter) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if exporter == nil {
		return nil, fmt.Errorf("snapshot exporter required")
	}
	return &financeSnapshotJob{logg: logg, exporter: exporter}, nil
}

type financeSnapshotJob struct {
	logg     *logger.Logger
	exporter snapshotExporter
}

func (j *financeSnapshotJob) Name() string { return "finance-snapshot" }

func (j *financeSnapshotJob) Run(ctx context.Context) error {
	id, err := j.exporter.Export(ctx)
	if err != nil {
		return fmt.Errorf("finance snapshot: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "snapshot_id", id), "finance snapshot exported")
	return nil
}
