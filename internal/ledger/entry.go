package ledger

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// TimeFormat is the ISO-8601 layout used for Entry.Ver. UTC times render
// with an explicit "+00:00" offset.
const TimeFormat = "2006-01-02T15:04:05-07:00"

// Entry is one ledger line. Field order and names are the wire format.
type Entry struct {
	URL    string `json:"url"`
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	SHA256 string `json:"sha256"`
	Ver    string `json:"ver"`
	Algo   string `json:"algo"`
}

// FormatVer renders t in UTC using TimeFormat.
func FormatVer(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// MarshalLine serialises e as a single JSON object terminated by "\n".
// Slashes and HTML-significant characters are written unescaped.
func (e *Entry) MarshalLine() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ParseLine decodes one ledger line. Surrounding whitespace is ignored.
func ParseLine(line string) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// NormalizeURL makes URL comparison insensitive to a trailing slash.
func NormalizeURL(u string) string {
	return strings.TrimRight(u, "/") + "/"
}
