package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/service"
)

// ReindexJob sweeps products whose index entries are missing or
// behind the catalog, healing embed failures from earlier crawls.
type ReindexJob struct {
	indexer   *service.IndexService
	batchSize int
}

func NewReindexJob(indexer *service.IndexService, batchSize int) *ReindexJob {
	return &ReindexJob{indexer: indexer, batchSize: batchSize}
}

func (j *ReindexJob) Name() string {
	return "index_heal"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	if j.indexer == nil {
		return nil
	}
	batchSize := j.batchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	healed, err := j.indexer.ProcessStale(ctx, batchSize)
	if err != nil {
		return err
	}
	if healed > 0 {
		logutil.GetLogger(ctx).Info("index heal pass", zap.Int("healed", healed))
	}
	return nil
}
