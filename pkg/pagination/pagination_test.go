package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2025, 3, 1, 12, 30, 0, 500, time.UTC), ID: uuid.New()}
	parsed, err := ParseCursor(EncodeCursor(want))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.CreatedAt.Equal(want.CreatedAt) || parsed.ID != want.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", parsed, want)
	}
}

func TestParseCursorEmptyAndInvalid(t *testing.T) {
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("expected nil cursor, got %+v %v", c, err)
	}
	if _, err := ParseCursor("not-base64!!"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 5: 5, 500: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestTrimBuildsNextCursor(t *testing.T) {
	now := time.Now().UTC()
	type row struct {
		id uuid.UUID
		at time.Time
	}
	rows := []row{{uuid.New(), now}, {uuid.New(), now.Add(-time.Minute)}, {uuid.New(), now.Add(-2 * time.Minute)}}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	kept, next := Trim(rows, 2, key)
	if len(kept) != 2 || next == "" {
		t.Fatalf("expected two rows and a cursor, got %d %q", len(kept), next)
	}
	cursor, err := ParseCursor(next)
	if err != nil || cursor.ID != rows[1].id {
		t.Fatalf("cursor should point at last kept row: %+v %v", cursor, err)
	}

	kept, next = Trim(rows[:2], 2, key)
	if len(kept) != 2 || next != "" {
		t.Fatalf("expected final page, got %d %q", len(kept), next)
	}
}
