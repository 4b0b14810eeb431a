package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the daemon reports 404.
var ErrNotFound = errors.New("not found")

// Proof is the response of GET /proof/:id.
type Proof struct {
	Mode      string  `json:"mode"`
	Commit    *string `json:"commit"`
	Hash      *string `json:"hash"`
	URL       string  `json:"url"`
	Ver       string  `json:"ver"`
	Short     string  `json:"short,omitempty"`
	CommitURL string  `json:"commit_url,omitempty"`
}

// Verification is the response of GET /verify.
type Verification struct {
	URL          string  `json:"url"`
	PostID       *int64  `json:"post_id"`
	ComputedSHA  *string `json:"computed_sha"`
	StoredSHA    *string `json:"stored_sha"`
	LedgerSHA    *string `json:"ledger_sha"`
	MatchLocal   *bool   `json:"match_local"`
	MatchLedger  *bool   `json:"match_ledger"`
	Commit       *string `json:"commit"`
	CommitURL    *string `json:"commit_url"`
	LastModified *string `json:"last_modified"`
}

// TransitionResult is the response of POST /admin/transition.
type TransitionResult struct {
	Stamped bool   `json:"stamped"`
	Mode    string `json:"mode,omitempty"`
	ID      int64  `json:"id,omitempty"`
	Hash    string `json:"hash,omitempty"`
	Commit  string `json:"commit,omitempty"`
}

// Tally is the response of POST /admin/stamp.
type Tally struct {
	OK   int `json:"ok"`
	Fail int `json:"fail"`
}

// Client is the ProofStamp SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithAdminToken attaches an admin token to every request.
func WithAdminToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the daemon at base.
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Proof fetches the proof summary of document id.
func (c *Client) Proof(ctx context.Context, id int64) (*Proof, error) {
	var p Proof
	if err := c.getJSON(ctx, "/proof/"+strconv.FormatInt(id, 10), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Verify checks documentURL against its stored hash and the ledger.
func (c *Client) Verify(ctx context.Context, documentURL string) (*Verification, error) {
	var v Verification
	if err := c.getJSON(ctx, "/verify?url="+url.QueryEscape(documentURL), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Transition reports a status change of document id. Requires an admin token.
func (c *Client) Transition(ctx context.Context, id int64, oldStatus, newStatus string) (*TransitionResult, error) {
	var res TransitionResult
	body := map[string]any{"id": id, "old_status": oldStatus, "new_status": newStatus}
	if err := c.postJSON(ctx, "/admin/transition", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StampMany stamps every id. Requires an admin token.
func (c *Client) StampMany(ctx context.Context, ids []int64) (*Tally, error) {
	var t Tally
	if err := c.postJSON(ctx, "/admin/stamp", map[string]any{"ids": ids}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

// do executes an HTTP request, attaching the Bearer token if present, and
// decodes a successful JSON response into out.
func (c *Client) do(req *http.Request, out any) error {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("unauthorized: %s", errorMessage(body))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server error %d: %s", resp.StatusCode, errorMessage(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
