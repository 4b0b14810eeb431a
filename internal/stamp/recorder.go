// Package stamp records canonical content hashes: locally on the document,
// and as an appended line in the remote ledger.
package stamp

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/ProofStamp/internal/canon"
	"github.com/jmerrifield20/ProofStamp/internal/content"
	"github.com/jmerrifield20/ProofStamp/internal/ledger"
	"github.com/jmerrifield20/ProofStamp/internal/metrics"
	"go.uber.org/zap"
)

// DefaultPath is the ledger file written when no path is configured.
const DefaultPath = "ledger/ledger.jsonl"

// Result describes one stamp. Receipt is empty when the ledger write did
// not happen; Hash is always set once the local hash has been persisted.
type Result struct {
	DocumentID int64  `json:"id"`
	Hash       string `json:"hash"`
	Receipt    string `json:"commit,omitempty"`
}

// Recorder stamps documents.
type Recorder struct {
	store   content.Store
	hasher  canon.Hasher
	ledger  *ledger.Client
	path    string
	retries int
	after   []func(ctx context.Context)
	logger  *zap.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithConflictRetries sets how many times an append is re-read and retried
// after a version conflict. Zero makes a conflict terminal.
func WithConflictRetries(n int) Option {
	return func(r *Recorder) {
		if n >= 0 {
			r.retries = n
		}
	}
}

// WithAfterAppend registers fn to run after every successful ledger append.
func WithAfterAppend(fn func(ctx context.Context)) Option {
	return func(r *Recorder) { r.after = append(r.after, fn) }
}

// NewRecorder creates a Recorder. A nil client puts the recorder in
// local-only mode: hashes are persisted and every stamp reports
// ledger.ErrNotConfigured.
func NewRecorder(store content.Store, hasher canon.Hasher, client *ledger.Client, path string, logger *zap.Logger, opts ...Option) *Recorder {
	if path == "" {
		path = DefaultPath
	}
	r := &Recorder{
		store:   store,
		hasher:  hasher,
		ledger:  client,
		path:    path,
		retries: 1,
		logger:  logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// LedgerConfigured reports whether stamps are written to a ledger.
func (r *Recorder) LedgerConfigured() bool {
	return r.ledger != nil
}

// Stamp hashes document id, persists the hash, appends a ledger entry and
// persists the resulting receipt.
//
// The local hash is written before the ledger is touched and is never rolled
// back. On a ledger failure the returned Result is non-nil (hash only) along
// with the error.
func (r *Recorder) Stamp(ctx context.Context, id int64) (*Result, error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document %d: %w", id, err)
	}
	return r.stamp(ctx, doc)
}

func (r *Recorder) stamp(ctx context.Context, doc *content.Document) (*Result, error) {
	hash := r.hasher.Hash(doc.Body)
	if err := r.store.SetMeta(ctx, doc.ID, content.MetaProofSHA, hash); err != nil {
		metrics.RecordStamp(metrics.StampFailed)
		return nil, fmt.Errorf("persist local hash for document %d: %w", doc.ID, err)
	}
	res := &Result{DocumentID: doc.ID, Hash: hash}

	if r.ledger == nil {
		metrics.RecordStamp(metrics.StampLocal)
		return res, ledger.ErrNotConfigured
	}

	entry := ledger.Entry{
		URL:    doc.Permalink,
		ID:     doc.ID,
		Title:  doc.Title,
		SHA256: hash,
		Ver:    ledger.FormatVer(doc.ModifiedAt),
		Algo:   canon.Algo,
	}
	line, err := entry.MarshalLine()
	if err != nil {
		metrics.RecordStamp(metrics.StampFailed)
		return res, fmt.Errorf("encode ledger entry: %w", err)
	}

	receipt, err := r.append(ctx, line)
	if err == nil && receipt == "" {
		err = errors.New("ledger host returned no write id")
	}
	if err != nil {
		metrics.RecordStamp(metrics.StampFailed)
		r.logger.Warn("ledger append failed, keeping local hash",
			zap.Int64("document_id", doc.ID),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return res, fmt.Errorf("append ledger entry for document %d: %w", doc.ID, err)
	}

	if err := r.store.SetMeta(ctx, doc.ID, content.MetaProofCommit, receipt); err != nil {
		metrics.RecordStamp(metrics.StampFailed)
		return res, fmt.Errorf("persist receipt for document %d: %w", doc.ID, err)
	}
	res.Receipt = receipt
	for _, fn := range r.after {
		fn(ctx)
	}

	metrics.RecordStamp(metrics.StampLedger)
	r.logger.Info("document stamped",
		zap.Int64("document_id", doc.ID),
		zap.String("sha256", hash),
		zap.String("commit", receipt),
	)
	return res, nil
}

// append re-reads and retries on a version conflict, up to r.retries times.
// Any other failure is returned immediately.
func (r *Recorder) append(ctx context.Context, line string) (string, error) {
	for attempt := 0; ; attempt++ {
		receipt, err := r.ledger.Append(ctx, r.path, line)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			return "", err
		}
		metrics.RecordLedgerConflict()
		if attempt >= r.retries {
			return "", err
		}
		r.logger.Info("ledger version conflict, re-reading",
			zap.String("path", r.path),
			zap.Int("attempt", attempt+1),
		)
	}
}
