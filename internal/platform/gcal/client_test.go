package gcal

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/calendar/v3"
)

func TestFullWindow_StableAcrossPages(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	c := NewClient("id", "secret", loc, time.Second, zerolog.Nop())

	// A paged listing crossing a second boundary must still send one
	// window: the pair is derived from a single clock read.
	tick := time.Date(2025, 6, 2, 0, 0, 59, 999_000_000, time.UTC)
	c.now = func() time.Time {
		cur := tick
		tick = tick.Add(2 * time.Millisecond)
		return cur
	}

	min1, max1 := c.fullWindow(21)
	min2, max2 := c.fullWindow(21)
	if min1 == min2 || max1 == max2 {
		t.Fatal("clock stub did not advance between calls")
	}
	wantMin := time.Date(2025, 6, 2, 0, 0, 59, 0, time.UTC).In(loc).Format(time.RFC3339)
	if min1 != wantMin {
		t.Errorf("timeMin = %q, want %q", min1, wantMin)
	}
	if maxT, _ := time.Parse(time.RFC3339, max1); !maxT.Equal(time.Date(2025, 6, 23, 0, 0, 59, 0, time.UTC)) {
		t.Errorf("timeMax = %q, want 21 days after timeMin", max1)
	}
}

func TestEventTime(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	c := NewClient("id", "secret", loc, time.Second, zerolog.Nop())

	t.Run("timed event", func(t *testing.T) {
		got := c.eventTime(&calendar.EventDateTime{DateTime: "2025-06-02T09:30:00-04:00"})
		want := time.Date(2025, 6, 2, 9, 30, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("all-day event anchors at local midnight", func(t *testing.T) {
		got := c.eventTime(&calendar.EventDateTime{Date: "2025-06-02"})
		want := time.Date(2025, 6, 2, 0, 0, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("malformed boundaries are zero", func(t *testing.T) {
		if !c.eventTime(nil).IsZero() {
			t.Error("nil boundary should be zero")
		}
		if !c.eventTime(&calendar.EventDateTime{}).IsZero() {
			t.Error("empty boundary should be zero")
		}
		if !c.eventTime(&calendar.EventDateTime{DateTime: "not-a-time"}).IsZero() {
			t.Error("garbage datetime should be zero")
		}
	})
}
