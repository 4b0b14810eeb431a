package ledger

import (
	"encoding/json"
	"strings"
)

// lineBreaks splits on "\r\n", "\r" or "\n".
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// FindLatest scans content from the last line towards the first and returns
// the first entry whose url matches target, ignoring a trailing slash on
// either side. Only url has to be a JSON string for a line to match; the
// other fields are decoded when their types fit and left zero otherwise, so
// a hand-edited newer line is never passed over for an older one. Blank
// lines and lines without a string url are skipped; lines that are not JSON
// objects are reported to onErr (when non-nil) and skipped. It returns nil
// when nothing matches.
func FindLatest(content, target string, onErr func(*ParseError)) *Entry {
	lines := strings.Split(lineBreaks.Replace(content), "\n")
	needle := NormalizeURL(target)

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			if onErr != nil {
				onErr(&ParseError{Line: i + 1, Err: err})
			}
			continue
		}
		var url string
		if raw, ok := fields["url"]; !ok || json.Unmarshal(raw, &url) != nil {
			continue
		}
		if NormalizeURL(url) != needle {
			continue
		}
		return looseEntry(url, fields)
	}
	return nil
}

// looseEntry builds an Entry from already-split fields, keeping only the
// values whose JSON type matches the field.
func looseEntry(url string, fields map[string]json.RawMessage) *Entry {
	e := &Entry{URL: url}
	decode := func(key string, dst any) {
		if raw, ok := fields[key]; ok {
			// A type mismatch leaves dst at its zero value.
			_ = json.Unmarshal(raw, dst)
		}
	}
	decode("id", &e.ID)
	decode("title", &e.Title)
	decode("sha256", &e.SHA256)
	decode("ver", &e.Ver)
	decode("algo", &e.Algo)
	return e
}
