package core

import (
	"testing"
	"time"
)

func TestMonthValidate(t *testing.T) {
	cases := []struct {
		m  Month
		ok bool
	}{
		{Month{Year: 2025, Month: time.January}, true},
		{Month{Year: 2025, Month: time.December}, true},
		{Month{Year: 2025, Month: 0}, false},
		{Month{Year: 2025, Month: 13}, false},
		{Month{Year: 2025, Month: -3}, false},
	}
	for i, tc := range cases {
		err := tc.m.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMonthPrevNextRoundTrip(t *testing.T) {
	// Prev then Next (and Next then Prev) must return the original pair
	// for every valid month.
	for m := time.January; m <= time.December; m++ {
		orig := Month{Year: 2025, Month: m}
		if got := orig.Prev().Next(); got != orig {
			t.Fatalf("prev/next of %v returned %v", orig, got)
		}
		if got := orig.Next().Prev(); got != orig {
			t.Fatalf("next/prev of %v returned %v", orig, got)
		}
	}
}

func TestMonthYearRollover(t *testing.T) {
	jan := Month{Year: 2025, Month: time.January}
	if got := jan.Prev(); got != (Month{Year: 2024, Month: time.December}) {
		t.Fatalf("prev of january: got %v", got)
	}
	dec := Month{Year: 2025, Month: time.December}
	if got := dec.Next(); got != (Month{Year: 2026, Month: time.January}) {
		t.Fatalf("next of december: got %v", got)
	}
}

func TestMonthIsCurrent(t *testing.T) {
	now := time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)

	if !(Month{Year: 2025, Month: time.June}).IsCurrent(now) {
		t.Fatalf("expected current month to be current")
	}
	others := []Month{
		{Year: 2025, Month: time.May},
		{Year: 2025, Month: time.July},
		{Year: 2024, Month: time.June},
		{Year: 2026, Month: time.June},
	}
	for i, m := range others {
		if m.IsCurrent(now) {
			t.Fatalf("case %d: %v should not be current", i, m)
		}
	}
}

func TestMonthNextAllowed(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		m    Month
		want Month
		ok   bool
	}{
		{Month{2025, time.May}, Month{2025, time.June}, true},
		{Month{2024, time.December}, Month{2025, time.January}, true},
		// Navigation stops at the current month.
		{Month{2025, time.June}, Month{2025, time.June}, false},
		// A forged future month must not advance either.
		{Month{2025, time.August}, Month{2025, time.August}, false},
	}
	for i, tc := range cases {
		got, ok := tc.m.NextAllowed(now)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("case %d: got (%v, %v), want (%v, %v)", i, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMonthContains(t *testing.T) {
	m := Month{Year: 2025, Month: time.February}
	if !m.Contains(time.Date(2025, time.February, 28, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected february date to be contained")
	}
	if m.Contains(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("march date must not be contained")
	}
}

func TestMonthString(t *testing.T) {
	if got := (Month{Year: 2025, Month: time.March}).String(); got != "2025-03" {
		t.Fatalf("got %q", got)
	}
	if got := (Month{Year: 999, Month: time.December}).String(); got != "0999-12" {
		t.Fatalf("got %q", got)
	}
}
