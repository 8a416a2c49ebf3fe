package timegrid

import "testing"

func TestParseStartMinute(t *testing.T) {
	cases := []struct {
		in     string
		minute int
		ok     bool
	}{
		{"09:00", 540, true},
		{"9:00", 540, true},
		{"13:30", 810, true},
		{"01:00 PM", 780, true},
		{"1:00 pm", 780, true},
		{"12:00 AM", 0, true},
		{"12:30 PM", 750, true},
		{"10:00 AM - 11:00 AM", 600, true},
		{"14:00 - 15:00", 840, true},
		{"  08:15 ", 495, true},
		{"noonish", 0, false},
		{"", 0, false},
		{"25:00", 0, false},
	}
	for _, tc := range cases {
		m, ok := ParseStartMinute(tc.in)
		if ok != tc.ok {
			t.Errorf("ParseStartMinute(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && m != tc.minute {
			t.Errorf("ParseStartMinute(%q) = %d, want %d", tc.in, m, tc.minute)
		}
	}
}

func TestParseSlots_PreservesRawForUnparsable(t *testing.T) {
	slots := ParseSlots([]string{"09:00", "whenever"})
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Parsed || slots[0].Minute != 540 {
		t.Errorf("expected first slot parsed at 540, got %+v", slots[0])
	}
	if slots[1].Parsed {
		t.Errorf("expected second slot unparsable, got %+v", slots[1])
	}
	if slots[1].Raw != "whenever" {
		t.Errorf("expected raw text preserved, got %q", slots[1].Raw)
	}
}

func TestFormatMinute(t *testing.T) {
	if got := FormatMinute(540); got != "09:00" {
		t.Errorf("FormatMinute(540) = %q, want 09:00", got)
	}
	if got := FormatMinute(1439); got != "23:59" {
		t.Errorf("FormatMinute(1439) = %q, want 23:59", got)
	}
}
