package ledger

// Txn is one optimistic read-modify-write against a ledger file. It holds
// the content and version token observed by the read; Commit writes the
// appended content back under that token.
type Txn struct {
	Path         string
	Branch       string
	VersionToken string
	Content      string
}

// Creating reports whether the file did not exist when the transaction
// began, so the write creates it.
func (t *Txn) Creating() bool {
	return t.VersionToken == ""
}

// Appended returns the transaction content with line added at the end.
// Prior content is never reordered or rewritten.
func (t *Txn) Appended(line string) string {
	return t.Content + line
}
