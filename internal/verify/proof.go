package verify

import (
	"context"

	"github.com/jmerrifield20/ProofStamp/internal/content"
	"github.com/jmerrifield20/ProofStamp/internal/ledger"
)

// Proof modes, strongest first.
const (
	ModeLedger = "ledger"
	ModeLocal  = "local"
	ModeNone   = "none"
)

// Proof summarises the stamping state of a published document.
type Proof struct {
	Mode      string  `json:"mode"`
	Commit    *string `json:"commit"`
	Hash      *string `json:"hash"`
	URL       string  `json:"url"`
	Ver       string  `json:"ver"`
	Short     string  `json:"short,omitempty"`
	CommitURL string  `json:"commit_url,omitempty"`
}

// Proof returns the proof summary for document id. Missing and unpublished
// documents both report content.ErrNotFound.
func (v *Verifier) Proof(ctx context.Context, id int64) (*Proof, error) {
	doc, err := v.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.Published() {
		return nil, content.ErrNotFound
	}

	commit, err := v.store.GetMeta(ctx, id, content.MetaProofCommit)
	if err != nil {
		return nil, err
	}
	hash, err := v.store.GetMeta(ctx, id, content.MetaProofSHA)
	if err != nil {
		return nil, err
	}

	p := &Proof{
		Mode:   ModeNone,
		Commit: nonEmpty(commit),
		Hash:   nonEmpty(hash),
		URL:    doc.Permalink,
		Ver:    ledger.FormatVer(doc.ModifiedAt),
	}
	switch {
	case commit != "":
		p.Mode = ModeLedger
		p.Short = prefix(commit, 7)
		if l, ok := v.raw.(ledger.CommitLinker); ok {
			p.CommitURL = l.CommitURL(commit)
		}
	case hash != "":
		p.Mode = ModeLocal
		p.Short = prefix(hash, 12) + "…"
	}
	return p, nil
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
