package core

import (
	"fmt"
	"time"
)

// Month identifies a calendar month as a (year, month) pair.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the Month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) Validate() error {
	if m.Month < time.January || m.Month > time.December {
		return ErrInvalidMonth
	}
	return nil
}

// Prev returns the previous calendar month, rolling over year boundaries.
func (m Month) Prev() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December}
	}
	return Month{Year: m.Year, Month: m.Month - 1}
}

// Next returns the next calendar month, rolling over year boundaries.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// IsCurrent reports whether m is the wall-clock month of now.
func (m Month) IsCurrent(now time.Time) bool {
	return m.Year == now.Year() && m.Month == now.Month()
}

// NextAllowed returns the next month when navigation forward is permitted.
// Once the current month is reached the navigator must not step into the
// future, so the receiver is returned unchanged with ok=false.
func (m Month) NextAllowed(now time.Time) (Month, bool) {
	if !m.Before(MonthOf(now)) {
		return m, false
	}
	return m.Next(), true
}

// Before reports whether m is strictly earlier than other.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

// Contains reports whether t falls within m.
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

// Start returns midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns midnight UTC on the first day of the following month.
func (m Month) End() time.Time {
	n := m.Next()
	return time.Date(n.Year, n.Month, 1, 0, 0, 0, 0, time.UTC)
}

// String renders the month as "YYYY-MM", the form used for cache keys and
// query parameters.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}
