package services

import (
	"fmt"
	"time"
)

// TradingWindow is the daily span, in the venue time zone, during which
// subscriptions are booked directly. Both ends are inclusive.
type TradingWindow struct {
	Start    time.Duration
	End      time.Duration
	Location *time.Location
}

// DefaultTradingWindow is 09:00:00 to 15:00:00 Asia/Shanghai, falling back
// to UTC+8 when the zone database is unavailable.
func DefaultTradingWindow() TradingWindow {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*60*60)
	}
	return TradingWindow{Start: 9 * time.Hour, End: 15 * time.Hour, Location: loc}
}

// ParseTradingWindow builds a window from "HH:MM[:SS]" bounds and an IANA zone name.
func ParseTradingWindow(start, end, zone string) (TradingWindow, error) {
	from, err := parseClock(start)
	if err != nil {
		return TradingWindow{}, fmt.Errorf("trading window start: %w", err)
	}
	to, err := parseClock(end)
	if err != nil {
		return TradingWindow{}, fmt.Errorf("trading window end: %w", err)
	}
	if to < from {
		return TradingWindow{}, fmt.Errorf("trading window end %s is before start %s", end, start)
	}
	loc := time.UTC
	if zone != "" {
		if loc, err = time.LoadLocation(zone); err != nil {
			return TradingWindow{}, fmt.Errorf("trading window zone: %w", err)
		}
	}
	return TradingWindow{Start: from, End: to, Location: loc}, nil
}

func parseClock(s string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q", s)
}

// Contains reports whether t falls within the window on its local day.
func (w TradingWindow) Contains(t time.Time) bool {
	local := t.In(w.location())
	sinceMidnight := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return sinceMidnight >= w.Start && sinceMidnight <= w.End
}

func (w TradingWindow) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}
