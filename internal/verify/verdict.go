package verify

import (
	"crypto/subtle"
	"fmt"
)

// Verdict is the tri-state outcome of comparing two hashes. The zero value
// is Unknown, which is distinct from Mismatch: it means one side of the
// comparison was unavailable.
type Verdict int8

const (
	Unknown Verdict = iota
	Match
	Mismatch
)

// Compare returns Unknown when either hash is missing, otherwise Match or
// Mismatch using a constant-time comparison.
func Compare(computed, other *string) Verdict {
	if computed == nil || other == nil || *computed == "" || *other == "" {
		return Unknown
	}
	if subtle.ConstantTimeCompare([]byte(*computed), []byte(*other)) == 1 {
		return Match
	}
	return Mismatch
}

// String returns "true", "false" or "null", the verdict's JSON form.
func (v Verdict) String() string {
	switch v {
	case Match:
		return "true"
	case Mismatch:
		return "false"
	default:
		return "null"
	}
}

// MarshalJSON encodes Match as true, Mismatch as false and Unknown as null.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *Verdict) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*v = Match
	case "false":
		*v = Mismatch
	case "null":
		*v = Unknown
	default:
		return fmt.Errorf("verdict: unexpected value %s", b)
	}
	return nil
}
