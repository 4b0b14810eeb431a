// Package verify reconciles a document's live hash against its locally
// stored hash and the latest ledger entry for its URL.
package verify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmerrifield20/ProofStamp/internal/canon"
	"github.com/jmerrifield20/ProofStamp/internal/content"
	"github.com/jmerrifield20/ProofStamp/internal/ledger"
	"github.com/jmerrifield20/ProofStamp/internal/metrics"
	"go.uber.org/zap"
)

const maxDocumentBytes = 16 << 20

// Config holds the Verifier settings.
type Config struct {
	// SiteOrigin is the prefix of URLs served by the local content store.
	SiteOrigin string
	// Path and Branch locate the ledger file.
	Path   string
	Branch string
	// FetchTimeout bounds the live document fetch. Defaults to 15s.
	FetchTimeout time.Duration
	UserAgent    string
	// AllowedHosts limits live fetches to these host names (the site
	// origin's host is always included). Empty allows any host.
	AllowedHosts []string
	// AllowPrivateHosts permits live fetches to loopback, private and
	// link-local addresses. It only affects the default client.
	AllowPrivateHosts bool
	// HTTPClient replaces the default fetch client. The host allow-list
	// still applies to the first request; address checks are then the
	// client's responsibility.
	HTTPClient *http.Client
}

// Result is the outcome of one verification. Absent values encode as null.
type Result struct {
	URL          string  `json:"url"`
	PostID       *int64  `json:"post_id"`
	ComputedSHA  *string `json:"computed_sha"`
	StoredSHA    *string `json:"stored_sha"`
	LedgerSHA    *string `json:"ledger_sha"`
	MatchLocal   Verdict `json:"match_local"`
	MatchLedger  Verdict `json:"match_ledger"`
	Commit       *string `json:"commit"`
	CommitURL    *string `json:"commit_url"`
	LastModified *string `json:"last_modified"`
}

// Verifier answers "does this document still match what was stamped?".
type Verifier struct {
	store  content.Store
	hasher canon.Hasher
	raw    ledger.RawReader
	cfg    Config
	policy hostPolicy
	client *http.Client
	logger *zap.Logger
}

// New creates a Verifier. raw may be nil when no ledger is configured, in
// which case every ledger verdict is Unknown. If raw also implements
// ledger.CommitLinker it is used to build commit links.
func New(store content.Store, hasher canon.Hasher, raw ledger.RawReader, cfg Config, logger *zap.Logger) *Verifier {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.Path == "" {
		cfg.Path = "ledger/ledger.jsonl"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ProofStamp-Verify"
	}
	policy := newHostPolicy(cfg.SiteOrigin, cfg.AllowedHosts)
	client := cfg.HTTPClient
	if client == nil {
		client = newFetchClient(cfg.FetchTimeout, policy, cfg.AllowPrivateHosts)
	}
	return &Verifier{
		store:  store,
		hasher: hasher,
		raw:    raw,
		cfg:    cfg,
		policy: policy,
		client: client,
		logger: logger,
	}
}

// IsLocal reports whether url belongs to the configured site origin.
func (v *Verifier) IsLocal(url string) bool {
	if v.cfg.SiteOrigin == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(ledger.NormalizeURL(url)), strings.ToLower(v.cfg.SiteOrigin))
}

// Verify computes the three-way verdict for url. Missing sources degrade
// their fields to null; only a content store failure aborts verification.
func (v *Verifier) Verify(ctx context.Context, url string) (*Result, error) {
	url = strings.TrimSpace(url)
	res := &Result{URL: url}

	local := v.IsLocal(url)
	var doc *content.Document
	if local {
		d, err := v.store.ResolveURL(ctx, url)
		switch {
		case err == nil:
			doc = d
		case !errors.Is(err, content.ErrNotFound):
			return nil, err
		}
	}

	if doc != nil {
		res.ComputedSHA = ptr(v.hasher.Hash(doc.Body))
	} else if sum, err := v.fetchHash(ctx, url); err != nil {
		v.logger.Warn("live document fetch failed", zap.String("url", url), zap.Error(err))
	} else {
		res.ComputedSHA = &sum
	}

	if doc != nil {
		res.PostID = &doc.ID
		stored, err := v.store.GetMeta(ctx, doc.ID, content.MetaProofSHA)
		if err != nil {
			return nil, err
		}
		commit, err := v.store.GetMeta(ctx, doc.ID, content.MetaProofCommit)
		if err != nil {
			return nil, err
		}
		res.StoredSHA = nonEmpty(stored)
		res.Commit = nonEmpty(commit)
		res.LastModified = ptr(ledger.FormatVer(doc.ModifiedAt))
	}

	res.LedgerSHA = v.ledgerHash(ctx, url)

	res.MatchLocal = Compare(res.ComputedSHA, res.StoredSHA)
	res.MatchLedger = Compare(res.ComputedSHA, res.LedgerSHA)

	if res.Commit != nil {
		if l, ok := v.raw.(ledger.CommitLinker); ok {
			res.CommitURL = nonEmpty(l.CommitURL(*res.Commit))
		}
	}

	source := "remote"
	if doc != nil {
		source = "local"
	}
	metrics.RecordVerification(source, res.MatchLedger.String())
	return res, nil
}

// fetchHash downloads url and hashes its body.
func (v *Verifier) fetchHash(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &RemoteFetchError{URL: url, Err: err}
	}
	if err := v.policy.check(req.URL); err != nil {
		return "", &RemoteFetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", v.cfg.UserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", &RemoteFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RemoteFetchError{URL: url, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", &RemoteFetchError{URL: url, Status: resp.StatusCode, Err: err}
	}
	return v.hasher.Hash(string(body)), nil
}

// ledgerHash returns the sha256 of the latest ledger entry for url, or nil.
func (v *Verifier) ledgerHash(ctx context.Context, url string) *string {
	if v.raw == nil {
		return nil
	}
	body, err := v.raw.ReadRaw(ctx, v.cfg.Path, v.cfg.Branch)
	if err != nil {
		v.logger.Warn("ledger read failed", zap.String("path", v.cfg.Path), zap.Error(err))
		return nil
	}
	e := ledger.FindLatest(body, url, func(pe *ledger.ParseError) {
		v.logger.Debug("skipping malformed ledger line", zap.String("path", v.cfg.Path), zap.Error(pe))
	})
	if e == nil {
		return nil
	}
	return nonEmpty(e.SHA256)
}

func ptr(s string) *string { return &s }

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
