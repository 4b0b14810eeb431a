// Package ledger implements the append-only proof ledger: a newline-delimited
// JSON file kept on a version-controlled remote host.
//
// Writes go through Client, which performs one optimistic read-modify-write
// per call: the file is read together with its version token, the new line
// is appended, and the result is written back carrying that token. A host
// that has seen another write in between rejects the token, so a concurrent
// append surfaces as a *WriteError instead of being silently overwritten.
// The client never retries on its own; callers decide.
//
// Reads for verification go through a RawReader, a separate read-only path
// that does not consume the write credential.
//
// Hosts provided:
//   - GitHubHost: the GitHub contents API (plus the raw.githubusercontent view).
//   - MemoryHost: in-process, for tests and local development.
package ledger

import "context"

// Snapshot is the state of a ledger file as observed by a read.
type Snapshot struct {
	// Content is the decoded full text of the file.
	Content string
	// VersionToken is the host's revision id for Content. Empty when the
	// file does not exist yet.
	VersionToken string
	// Exists is false when the host reported the file as missing.
	Exists bool
}

// PutRequest is a conditional write of the full file content.
type PutRequest struct {
	Content string
	// VersionToken must be the token observed by the read this write is
	// based on. Empty means "create the file".
	VersionToken string
	Message      string
	Branch       string
}

// Host is the content API of a ledger host.
type Host interface {
	// Get reads the file at path on branch. A missing file is not an
	// error: it yields a Snapshot with Exists == false.
	Get(ctx context.Context, path, branch string) (*Snapshot, error)

	// Put writes the file and returns the host-assigned write id
	// (commit sha). A stale or missing VersionToken yields a *WriteError
	// whose Conflict method reports true.
	Put(ctx context.Context, path string, req PutRequest) (string, error)
}

// RawReader fetches the full text of a ledger file from a read-only view.
type RawReader interface {
	ReadRaw(ctx context.Context, path, branch string) (string, error)
}

// CommitLinker builds a public link to a write receipt.
type CommitLinker interface {
	CommitURL(writeID string) string
}
