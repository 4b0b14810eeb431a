// Package client is the ProofStamp Go SDK.
//
// It talks to a running proofstampd over HTTP: reading proof summaries,
// verifying a document URL against its stored hash and the ledger, and,
// with an admin token, triggering stamps.
//
//	c, err := client.New("https://proofs.example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := c.Verify(ctx, "https://example.com/hello/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if res.MatchLedger != nil && !*res.MatchLedger {
//	    fmt.Println("content changed since it was stamped")
//	}
//
// Verdicts are *bool: nil means the comparison could not be made and must
// not be read as a mismatch.
package client
