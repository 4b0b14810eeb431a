package ledger_test

import (
	"strings"
	"testing"

	"github.com/jmerrifield20/ProofStamp/internal/ledger"
)

func line(t *testing.T, url, sha string) string {
	t.Helper()
	e := ledger.Entry{URL: url, ID: 1, Title: "t", SHA256: sha, Ver: "2025-01-01T00:00:00+00:00", Algo: "sha256(canonical_text_v1)"}
	s, err := e.MarshalLine()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFindLatest_mostRecentWins(t *testing.T) {
	content := line(t, "https://example.com/post/", "old") +
		line(t, "https://example.com/other/", "x") +
		line(t, "https://example.com/post", "new")

	e := ledger.FindLatest(content, "https://example.com/post/", nil)
	if e == nil {
		t.Fatal("expected a match")
	}
	if e.SHA256 != "new" {
		t.Errorf("expected later entry, got %q", e.SHA256)
	}
}

func TestFindLatest_trailingSlashInsensitive(t *testing.T) {
	content := line(t, "https://example.com/post/", "h")
	if ledger.FindLatest(content, "https://example.com/post", nil) == nil {
		t.Error("expected match without trailing slash")
	}
}

func TestFindLatest_noMatch(t *testing.T) {
	content := line(t, "https://example.com/a/", "h")
	if e := ledger.FindLatest(content, "https://example.com/b/", nil); e != nil {
		t.Errorf("expected nil, got %+v", e)
	}
	if e := ledger.FindLatest("", "https://example.com/b/", nil); e != nil {
		t.Errorf("expected nil on empty ledger, got %+v", e)
	}
}

func TestFindLatest_skipsMalformedLines(t *testing.T) {
	content := line(t, "https://example.com/post/", "good") +
		"\r\n" +
		"{not json\n" +
		`{"note":"no url"}` + "\r" +
		"   \n"

	var errs []*ledger.ParseError
	e := ledger.FindLatest(content, "https://example.com/post/", func(pe *ledger.ParseError) {
		errs = append(errs, pe)
	})
	if e == nil || e.SHA256 != "good" {
		t.Fatalf("expected the valid entry, got %+v", e)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 parse error, got %d", len(errs))
	}
	if errs[0].Line != 3 {
		t.Errorf("parse error line: got %d, want 3", errs[0].Line)
	}
}

func TestFindLatest_latestWinsDespiteFieldTypes(t *testing.T) {
	content := `{"url":"https://x/a/","id":1,"sha256":"old"}` + "\n" +
		`{"url":"https://x/a/","id":"1","sha256":"new","title":7}` + "\n"

	e := ledger.FindLatest(content, "https://x/a", nil)
	if e == nil || e.SHA256 != "new" {
		t.Fatalf("expected the newest line to win, got %+v", e)
	}
	if e.ID != 0 || e.Title != "" {
		t.Errorf("mistyped fields should decode as zero, got id=%d title=%q", e.ID, e.Title)
	}
}

func TestFindLatest_nonStringURLSkipped(t *testing.T) {
	content := line(t, "https://x/a/", "kept") +
		`{"url":42,"sha256":"ignored"}` + "\n" +
		`{"url":"https://x/a/","sha256":17}` + "\n"

	var errs int
	e := ledger.FindLatest(content, "https://x/a/", func(*ledger.ParseError) { errs++ })
	if e == nil || e.SHA256 != "" {
		t.Fatalf("expected the latest url match with an empty hash, got %+v", e)
	}
	if errs != 0 {
		t.Errorf("expected no parse errors, got %d", errs)
	}
}

func TestMarshalLine_wireFormat(t *testing.T) {
	e := ledger.Entry{
		URL:    "https://example.com/a/b/?x=1&y=<2>",
		ID:     42,
		Title:  "Fish & Chips",
		SHA256: "abc",
		Ver:    "2025-03-04T05:06:07+00:00",
		Algo:   "sha256(canonical_text_v1)",
	}
	got, err := e.MarshalLine()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"url":"https://example.com/a/b/?x=1&y=<2>","id":42,"title":"Fish & Chips","sha256":"abc","ver":"2025-03-04T05:06:07+00:00","algo":"sha256(canonical_text_v1)"}` + "\n"
	if got != want {
		t.Errorf("MarshalLine:\n got %s\nwant %s", got, want)
	}
	if strings.Count(got, "\n") != 1 {
		t.Error("line must contain exactly one trailing newline")
	}

	back, err := ledger.ParseLine(got)
	if err != nil {
		t.Fatal(err)
	}
	if *back != e {
		t.Errorf("ParseLine: got %+v", back)
	}
}
