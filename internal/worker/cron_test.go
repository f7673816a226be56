package worker

import (
	"testing"
	"time"
)

func TestParseCronField(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		min     int
		max     int
		wantErr bool
		check   map[int]bool // values expected true; absent values checked false
	}{
		{"wildcard", "*", 0, 59, false, nil},
		{"single value", "5", 0, 59, false, map[int]bool{5: true, 6: false}},
		{"list", "1,3,5", 0, 59, false, map[int]bool{1: true, 3: true, 5: true, 2: false}},
		{"range", "1-3", 0, 59, false, map[int]bool{1: true, 2: true, 3: true, 4: false}},
		{"step over range", "0-10/5", 0, 59, false, map[int]bool{0: true, 5: true, 10: true, 3: false}},
		{"step over wildcard", "*/15", 0, 59, false, map[int]bool{0: true, 15: true, 30: true, 45: true, 1: false}},
		{"out of range", "99", 0, 59, true, nil},
		{"garbage", "abc", 0, 59, true, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := parseCronField(tc.raw, tc.min, tc.max)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got none", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.raw, err)
			}
			if tc.name == "wildcard" && !f.any {
				t.Fatalf("expected any=true for wildcard field")
			}
			for v, want := range tc.check {
				if got := f.matches(v); got != want {
					t.Errorf("matches(%d) = %v, want %v", v, got, want)
				}
			}
		})
	}
}

func TestParseCronWrongFieldCount(t *testing.T) {
	if _, err := parseCron("* * * *"); err == nil {
		t.Fatal("expected error for 4-field expression")
	}
	if _, err := parseCron("* * * * * *"); err == nil {
		t.Fatal("expected error for 6-field expression")
	}
}

func TestCronScheduleMatches(t *testing.T) {
	// every day at 03:30
	sched, err := parseCron("30 3 * * *")
	if err != nil {
		t.Fatalf("parseCron: %v", err)
	}

	match := time.Date(2026, 7, 31, 3, 30, 0, 0, time.UTC)
	if !sched.matches(match) {
		t.Errorf("expected match at %v", match)
	}

	noMatch := time.Date(2026, 7, 31, 3, 31, 0, 0, time.UTC)
	if sched.matches(noMatch) {
		t.Errorf("expected no match at %v", noMatch)
	}
}

func TestCronScheduleWeekdaysOnly(t *testing.T) {
	// 9am Monday-Friday
	sched, err := parseCron("0 9 * * 1-5")
	if err != nil {
		t.Fatalf("parseCron: %v", err)
	}

	monday := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC) // a Monday
	if monday.Weekday() != time.Monday {
		t.Fatalf("test fixture broken: expected Monday, got %v", monday.Weekday())
	}
	if !sched.matches(monday) {
		t.Errorf("expected match on Monday 9am")
	}

	sunday := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	if sunday.Weekday() != time.Sunday {
		t.Fatalf("test fixture broken: expected Sunday, got %v", sunday.Weekday())
	}
	if sched.matches(sunday) {
		t.Errorf("expected no match on Sunday")
	}
}

func TestClaimReleaseDedup(t *testing.T) {
	p := &Pool{inFlight: make(map[string]bool)}

	if !p.claim("exec-1") {
		t.Fatal("first claim should succeed")
	}
	if p.claim("exec-1") {
		t.Fatal("second claim of same id should fail while in flight")
	}
	p.release("exec-1")
	if !p.claim("exec-1") {
		t.Fatal("claim should succeed again after release")
	}
}
