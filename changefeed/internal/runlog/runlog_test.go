package runlog

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/breakingchange/dbopen"
)

func newLog(t *testing.T) *Log {
	t.Helper()
	return New(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)))
}

func TestInsertAndHistory(t *testing.T) {
	// WHAT: Entries come back newest first for their source only.
	ctx := context.Background()
	l := newLog(t)

	entries := []*Entry{
		{ID: "1", RunID: "r1", Slug: "acme", Type: "terms", URL: "https://a", Status: StatusBaseline, StatusCode: 200, FetchedAt: 1000},
		{ID: "2", RunID: "r1", Slug: "globex", Type: "terms", URL: "https://g", Status: StatusFetchError, ErrorMessage: "HTTP 503", StatusCode: 503, FetchedAt: 1001},
		{ID: "3", RunID: "r2", Slug: "acme", Type: "terms", URL: "https://a", Status: StatusChanged, StatusCode: 200, Magnitude: 14, EventID: "evt", FetchedAt: 2000},
	}
	for _, e := range entries {
		if err := l.Insert(ctx, e); err != nil {
			t.Fatalf("insert %s: %v", e.ID, err)
		}
	}

	got, err := l.History(ctx, "acme", "terms", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "1" {
		t.Fatalf("history: got %+v", got)
	}
	if *got[0] != *entries[2] {
		t.Errorf("round trip: got %+v, want %+v", got[0], entries[2])
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)
	for i, slug := range []string{"c", "a", "b"} {
		l.Insert(ctx, &Entry{ID: slug, RunID: "run", Slug: slug, Type: "terms", URL: "u", Status: StatusUnchanged, FetchedAt: int64(i)})
	}
	l.Insert(ctx, &Entry{ID: "other", RunID: "other", Slug: "z", Type: "terms", URL: "u", Status: StatusUnchanged, FetchedAt: 9})

	got, err := l.Run(ctx, "run")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Slug != "c" || got[2].Slug != "b" {
		t.Errorf("run entries out of order: %+v", got)
	}
}

func TestLastFetchedAt(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	v, err := l.LastFetchedAt(ctx)
	if err != nil || v != 0 {
		t.Fatalf("empty log: %d %v", v, err)
	}
	l.Insert(ctx, &Entry{ID: "a", RunID: "r", Slug: "a", Type: "t", URL: "u", Status: StatusUnchanged, FetchedAt: 42})
	l.Insert(ctx, &Entry{ID: "b", RunID: "r", Slug: "b", Type: "t", URL: "u", Status: StatusUnchanged, FetchedAt: 7})
	if v, _ := l.LastFetchedAt(ctx); v != 42 {
		t.Errorf("got %d, want 42", v)
	}
}

func TestInsert_DuplicateID(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)
	e := &Entry{ID: "same", RunID: "r", Slug: "a", Type: "t", URL: "u", Status: StatusUnchanged, FetchedAt: 1}
	if err := l.Insert(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := l.Insert(ctx, e); err == nil {
		t.Error("duplicate id should fail")
	}
}
