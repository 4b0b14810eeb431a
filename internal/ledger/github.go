package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// maxLedgerBytes bounds how much of a ledger response is read.
const maxLedgerBytes = 64 << 20

// GitHubConfig locates a ledger file in a GitHub repository.
type GitHubConfig struct {
	APIURL    string // default https://api.github.com
	RawURL    string // default https://raw.githubusercontent.com
	WebURL    string // default https://github.com
	Owner     string
	Repo      string
	Token     string
	UserAgent string

	// ReadTimeout bounds a contents GET or a raw GET (default 15s).
	ReadTimeout time.Duration
	// WriteTimeout bounds a contents PUT (default 20s).
	WriteTimeout time.Duration

	// HTTPClient is the base transport. The bearer token is layered on top
	// of it for contents API calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (c *GitHubConfig) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.github.com"
	}
	if c.RawURL == "" {
		c.RawURL = "https://raw.githubusercontent.com"
	}
	if c.WebURL == "" {
		c.WebURL = "https://github.com"
	}
	if c.UserAgent == "" {
		c.UserAgent = "ProofStamp"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 20 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	c.RawURL = strings.TrimRight(c.RawURL, "/")
	c.WebURL = strings.TrimRight(c.WebURL, "/")
}

// CommitURL implements CommitLinker.
func (c GitHubConfig) CommitURL(writeID string) string {
	c.applyDefaults()
	return fmt.Sprintf("%s/%s/%s/commit/%s", c.WebURL, c.Owner, c.Repo, writeID)
}

// GitHubHost is a Host backed by the GitHub repository contents API.
type GitHubHost struct {
	cfg    GitHubConfig
	http   *http.Client
	logger *zap.Logger
}

// NewGitHubHost creates a GitHubHost. It returns a *ConfigError when the
// token, owner or repo is missing.
func NewGitHubHost(cfg GitHubConfig, logger *zap.Logger) (*GitHubHost, error) {
	switch {
	case cfg.Token == "":
		return nil, &ConfigError{Field: "token"}
	case cfg.Owner == "":
		return nil, &ConfigError{Field: "owner"}
	case cfg.Repo == "":
		return nil, &ConfigError{Field: "repo"}
	}
	cfg.applyDefaults()

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, cfg.HTTPClient)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	return &GitHubHost{
		cfg:    cfg,
		http:   oauth2.NewClient(ctx, src),
		logger: logger,
	}, nil
}

// CommitURL implements CommitLinker.
func (h *GitHubHost) CommitURL(writeID string) string {
	return h.cfg.CommitURL(writeID)
}

// contentsResponse is the subset of a contents API file object we use.
type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// putResponse is the subset of a contents API write response we use.
type putResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func (h *GitHubHost) contentsURL(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		h.cfg.APIURL, url.PathEscape(h.cfg.Owner), url.PathEscape(h.cfg.Repo), strings.Join(segs, "/"))
}

func (h *GitHubHost) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", h.cfg.UserAgent)
}

// Get implements Host.
func (h *GitHubHost) Get(ctx context.Context, path, branch string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ReadTimeout)
	defer cancel()

	u := h.contentsURL(path)
	if branch != "" {
		u += "?ref=" + url.QueryEscape(branch)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{Path: path, Err: fmt.Errorf("build request: %w", err)}
	}
	h.setHeaders(req)

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, &FetchError{Path: path, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return &Snapshot{}, nil
	default:
		return nil, &FetchError{Path: path, Status: resp.StatusCode, Err: errors.New(readSnippet(resp.Body))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLedgerBytes))
	if err != nil {
		return nil, &FetchError{Path: path, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	var obj contentsResponse
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, &FetchError{Path: path, Status: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	// Files above the contents API size limit come back with encoding
	// "none" and no content. Appending to that would truncate the ledger.
	if obj.Encoding != "" && obj.Encoding != "base64" {
		return nil, &FetchError{Path: path, Status: resp.StatusCode, Err: fmt.Errorf("unsupported content encoding %q", obj.Encoding)}
	}
	content, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\n", "", "\r", "").Replace(obj.Content))
	if err != nil {
		return nil, &FetchError{Path: path, Status: resp.StatusCode, Err: fmt.Errorf("decode content: %w", err)}
	}
	return &Snapshot{Content: string(content), VersionToken: obj.SHA, Exists: true}, nil
}

// Put implements Host.
func (h *GitHubHost) Put(ctx context.Context, path string, preq PutRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()

	payload := map[string]string{
		"message": preq.Message,
		"content": base64.StdEncoding.EncodeToString([]byte(preq.Content)),
		"branch":  preq.Branch,
	}
	if preq.VersionToken != "" {
		payload["sha"] = preq.VersionToken
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &WriteError{Path: path, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.contentsURL(path), bytes.NewReader(body))
	if err != nil {
		return "", &WriteError{Path: path, Err: fmt.Errorf("build request: %w", err)}
	}
	h.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		werr := &WriteError{Path: path, Status: resp.StatusCode, Err: errors.New(readSnippet(resp.Body))}
		if werr.Conflict() {
			h.logger.Warn("ledger write rejected: stale version token",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
			)
		}
		return "", werr
	}

	var out putResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", &WriteError{Path: path, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Commit.SHA == "" {
		return "", &WriteError{Path: path, Status: resp.StatusCode, Err: errors.New("response carried no commit sha")}
	}
	return out.Commit.SHA, nil
}

// GitHubRawReader reads ledger files from the unauthenticated raw view.
type GitHubRawReader struct {
	cfg  GitHubConfig
	http *http.Client
}

// NewGitHubRawReader creates a GitHubRawReader. Only owner and repo are
// required; the token is never sent.
func NewGitHubRawReader(cfg GitHubConfig) (*GitHubRawReader, error) {
	switch {
	case cfg.Owner == "":
		return nil, &ConfigError{Field: "owner"}
	case cfg.Repo == "":
		return nil, &ConfigError{Field: "repo"}
	}
	cfg.applyDefaults()
	return &GitHubRawReader{cfg: cfg, http: cfg.HTTPClient}, nil
}

// ReadRaw implements RawReader.
func (r *GitHubRawReader) ReadRaw(ctx context.Context, path, branch string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/%s/%s/%s/%s", r.cfg.RawURL, r.cfg.Owner, r.cfg.Repo, branch, strings.TrimLeft(path, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", &FetchError{Path: path, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", &FetchError{Path: path, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{Path: path, Status: resp.StatusCode, Err: errors.New(readSnippet(resp.Body))}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLedgerBytes))
	if err != nil {
		return "", &FetchError{Path: path, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(body), nil
}

// CommitURL implements CommitLinker.
func (r *GitHubRawReader) CommitURL(writeID string) string {
	return r.cfg.CommitURL(writeID)
}

// readSnippet returns a short prefix of an error response body.
func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "empty response"
	}
	return s
}
