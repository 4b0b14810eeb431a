package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Client appends lines to ledger files on a Host.
type Client struct {
	host   Host
	branch string
	now    func() time.Time
	logger *zap.Logger
}

// NewClient creates a Client writing to branch on host.
func NewClient(host Host, branch string, logger *zap.Logger) *Client {
	if branch == "" {
		branch = "main"
	}
	return &Client{
		host:   host,
		branch: branch,
		now:    time.Now,
		logger: logger,
	}
}

// Branch returns the branch the client writes to.
func (c *Client) Branch() string {
	return c.branch
}

// Begin reads the current file at path and opens a transaction on it.
// A missing file opens a creating transaction with empty content.
func (c *Client) Begin(ctx context.Context, path string) (*Txn, error) {
	snap, err := c.host.Get(ctx, path, c.branch)
	if err != nil {
		return nil, err
	}
	txn := &Txn{Path: path, Branch: c.branch}
	if snap.Exists {
		txn.Content = snap.Content
		txn.VersionToken = snap.VersionToken
	}
	return txn, nil
}

// Commit writes txn's content with line appended, guarded by txn's version
// token, and returns the host write id.
func (c *Client) Commit(ctx context.Context, txn *Txn, line string) (string, error) {
	req := PutRequest{
		Content:      txn.Appended(line),
		VersionToken: txn.VersionToken,
		Message:      fmt.Sprintf("stamp: %s @ %s", txn.Branch, FormatVer(c.now())),
		Branch:       txn.Branch,
	}
	writeID, err := c.host.Put(ctx, txn.Path, req)
	if err != nil {
		return "", err
	}

	c.logger.Debug("ledger line appended",
		zap.String("path", txn.Path),
		zap.String("branch", txn.Branch),
		zap.Bool("created", txn.Creating()),
		zap.String("write_id", writeID),
	)
	return writeID, nil
}

// Append performs one Begin/Commit round for line at path. It does not
// retry: a concurrent write between the read and the write surfaces as a
// *WriteError matching ErrConflict, and line is not written.
func (c *Client) Append(ctx context.Context, path, line string) (string, error) {
	txn, err := c.Begin(ctx, path)
	if err != nil {
		return "", err
	}
	return c.Commit(ctx, txn, line)
}
