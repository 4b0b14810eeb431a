package stamp

import (
	"context"
	"errors"

	"github.com/jmerrifield20/ProofStamp/internal/content"
	"github.com/jmerrifield20/ProofStamp/internal/ledger"
	"github.com/jmerrifield20/ProofStamp/internal/metrics"
	"go.uber.org/zap"
)

// OnTransition is the lifecycle hook fired when a document changes status.
// It stamps posts entering, or re-saved in, the published state and returns
// a nil Result for every other transition.
func (r *Recorder) OnTransition(ctx context.Context, id int64, oldStatus, newStatus string) (*Result, error) {
	if newStatus != content.StatusPublish {
		return nil, nil
	}
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Type != content.TypePost {
		return nil, nil
	}
	r.logger.Debug("publish transition",
		zap.Int64("document_id", id),
		zap.String("old_status", oldStatus),
		zap.String("new_status", newStatus),
	)
	return r.stamp(ctx, doc)
}

// Tally counts the outcome of a bulk stamp.
type Tally struct {
	OK   int `json:"ok"`
	Fail int `json:"fail"`
}

// StampMany stamps every id. Each document gets a fresh local hash; with no
// ledger configured a persisted local hash counts as ok.
func (r *Recorder) StampMany(ctx context.Context, ids []int64) Tally {
	var t Tally
	for _, id := range ids {
		res, err := r.Stamp(ctx, id)
		switch {
		case err == nil:
			t.OK++
		case res != nil && errors.Is(err, ledger.ErrNotConfigured):
			t.OK++
		default:
			t.Fail++
		}
	}
	return t
}

// Backfill stamps every published post that has no receipt yet, oldest
// first, one at a time. A failing document is logged and skipped. It
// returns the number of documents that received a receipt.
func (r *Recorder) Backfill(ctx context.Context) (int, error) {
	if r.ledger == nil {
		return 0, ledger.ErrNotConfigured
	}
	docs, err := r.store.ListPublished(ctx, content.TypePost)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		receipt, err := r.store.GetMeta(ctx, doc.ID, content.MetaProofCommit)
		if err != nil {
			r.logger.Warn("backfill: read receipt failed", zap.Int64("document_id", doc.ID), zap.Error(err))
			metrics.RecordBackfill(false)
			continue
		}
		if receipt != "" {
			continue
		}
		if _, err := r.stamp(ctx, doc); err != nil {
			r.logger.Warn("backfill: stamp failed", zap.Int64("document_id", doc.ID), zap.Error(err))
			metrics.RecordBackfill(false)
			continue
		}
		metrics.RecordBackfill(true)
		count++
	}

	r.logger.Info("backfill complete", zap.Int("stamped", count), zap.Int("published", len(docs)))
	return count, nil
}
