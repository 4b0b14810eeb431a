// Package content is the boundary to the content store: the documents that
// get stamped and the per-document metadata that holds their local hash and
// ledger write receipt.
package content

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Lifecycle values understood by the stamping hooks.
const (
	StatusPublish = "publish"
	TypePost      = "post"
)

// Metadata keys used for stamping state.
const (
	MetaProofSHA    = "_proof_sha"
	MetaProofCommit = "_proof_commit"
)

// Document is a content record as seen by the stamping pipeline.
type Document struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Permalink   string    `json:"permalink"`
	ModifiedAt  time.Time `json:"modified_at"`
	PublishedAt time.Time `json:"published_at"`
}

// Published reports whether d is in the published lifecycle state.
func (d *Document) Published() bool {
	return d.Status == StatusPublish
}

// Store is the read side of the content host plus its key/value metadata.
type Store interface {
	// Get returns the document with id or ErrNotFound.
	Get(ctx context.Context, id int64) (*Document, error)
	// ResolveURL maps a permalink to its document, ignoring a trailing
	// slash. It returns ErrNotFound when no document owns the URL.
	ResolveURL(ctx context.Context, url string) (*Document, error)
	// ListPublished returns published documents of docType, oldest first.
	ListPublished(ctx context.Context, docType string) ([]*Document, error)
	// GetMeta returns the value stored under key, or "" when unset.
	GetMeta(ctx context.Context, id int64, key string) (string, error)
	SetMeta(ctx context.Context, id int64, key, value string) error
}
