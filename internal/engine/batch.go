package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

// ItemResult is the outcome for one transaction of a bulk run.
type ItemResult struct {
	Err           error                       `json:"-"`
	Result        *model.ClassificationResult `json:"result,omitempty"`
	TransactionID string                      `json:"transaction_id"`
	Error         string                      `json:"error,omitempty"`
	ErrorCode     string                      `json:"error_code,omitempty"`
}

// BatchResult collects per-item outcomes in input order.
type BatchResult struct {
	Results   []ItemResult  `json:"results"`
	Duration  time.Duration `json:"duration"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// BatchOptions configures a bulk run.
type BatchOptions struct {
	Progress ProgressFunc
	TagOptions
}

// ClassifyBatch auto-classifies the given transactions independently.
// A nil ids slice means every transaction of the tenant. Per-item failures
// are reported in the result; the call itself fails with ErrBatchFailed only
// when every item failed.
func (a *AutoTagger) ClassifyBatch(ctx context.Context, scope model.Scope, ids []string, opts BatchOptions) (*BatchResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, common.InvalidInputf("%v", err)
	}
	if ids != nil && len(ids) == 0 {
		return nil, common.InvalidInputf("transaction id list is empty")
	}

	start := time.Now()

	// Each job either carries a loaded transaction or an id to resolve.
	type job struct {
		txn *model.Transaction
		id  string
	}
	var jobs []job
	if ids == nil {
		txns, err := a.transactions.ListTransactions(ctx, scope, service.TransactionFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}
		jobs = make([]job, len(txns))
		for i := range txns {
			jobs[i] = job{txn: &txns[i], id: txns[i].ID}
		}
	} else {
		jobs = make([]job, len(ids))
		for i, id := range ids {
			jobs[i] = job{id: id}
		}
	}

	a.logger.InfoContext(ctx, "Starting bulk auto-tagging",
		"scope", scope.String(),
		"items", len(jobs),
		"create_tags", opts.CreateTags,
		"force_reclassify", opts.ForceReclassify)

	result := &BatchResult{Results: make([]ItemResult, len(jobs))}

	var (
		mu   sync.Mutex
		done int
	)
	g := new(errgroup.Group)
	g.SetLimit(a.config.BulkConcurrency)

	for i, j := range jobs {
		g.Go(func() error {
			item := ItemResult{TransactionID: j.id}

			var (
				res *model.ClassificationResult
				err error
			)
			if j.txn != nil {
				res, err = a.AutoClassifyAndCategorize(ctx, *j.txn, opts.TagOptions)
			} else {
				res, err = a.ClassifyTransaction(ctx, scope, j.id, opts.TagOptions)
			}
			if err != nil {
				item.Err = err
				item.Error = err.Error()
				item.ErrorCode = common.ErrorCode(err)
				a.logger.WarnContext(ctx, "Failed to auto-tag transaction",
					"transaction_id", j.id,
					"error", err)
			} else {
				item.Result = res
			}
			a.metrics.RecordBulkItem(err == nil)

			mu.Lock()
			result.Results[i] = item
			if err == nil {
				result.Succeeded++
			} else {
				result.Failed++
			}
			done++
			if opts.Progress != nil {
				opts.Progress(done, len(jobs))
			}
			mu.Unlock()

			// Item failures never abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	a.logger.InfoContext(ctx, "Bulk auto-tagging complete",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", result.Duration)

	if len(jobs) > 0 && result.Succeeded == 0 {
		return result, fmt.Errorf("%w: %d of %d items failed", common.ErrBatchFailed, result.Failed, len(jobs))
	}
	return result, nil
}
