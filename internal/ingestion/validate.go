package ingestion

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/guttosm/b3lake/internal/apperr"
)

// DateLayout is the only accepted form for --date, --start-date and --end-date.
const DateLayout = "2006-01-02"

var (
	intradayIntervals = []string{"1m", "2m", "5m", "15m", "30m", "60m", "90m"}
	dailyIntervals    = []string{"1d", "1wk", "1mo"}

	periodPattern = regexp.MustCompile(`^(\d+)(m|d|mo|y|wk|w)$`)
)

// Intervals lists every supported sampling interval.
func Intervals() []string {
	out := slices.Concat(intradayIntervals, dailyIntervals)
	slices.Sort(out)
	return out
}

// IsIntraday reports whether interval samples more than once per session.
func IsIntraday(interval string) bool {
	return slices.Contains(intradayIntervals, interval)
}

// ValidateInterval rejects interval tokens outside the supported set.
func ValidateInterval(interval string) error {
	if IsIntraday(interval) || slices.Contains(dailyIntervals, interval) {
		return nil
	}
	return apperr.Errorf(apperr.ErrValidation, "unsupported interval %q. supported: %s",
		interval, strings.Join(Intervals(), ","))
}

// ValidatePeriod accepts lookback tokens like 1d, 7d, 1mo, 1y, max and ytd.
func ValidatePeriod(period string) error {
	if period == "max" || period == "ytd" || periodPattern.MatchString(period) {
		return nil
	}
	return apperr.Errorf(apperr.ErrValidation, "invalid period %q; examples: 1d,7d,1mo,3mo,1y,max,ytd", period)
}

// ValidateDate parses a strict YYYY-MM-DD date as UTC midnight.
func ValidateDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, value)
	if err != nil || d.Format(DateLayout) != value {
		return time.Time{}, apperr.Errorf(apperr.ErrValidation, "invalid date %q; expected YYYY-MM-DD", value)
	}
	return d, nil
}

// IntervalPeriodWarning returns a non-empty message when an intraday interval is
// paired with a lookback long enough to come back truncated. It never fails.
func IntervalPeriodWarning(interval, period string) string {
	if !IsIntraday(interval) {
		return ""
	}
	long := strings.HasSuffix(period, "y")
	if m := periodPattern.FindStringSubmatch(period); m != nil && m[2] == "mo" {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 6 {
			long = true
		}
	}
	if !long {
		return ""
	}
	return fmt.Sprintf("intraday interval %q with long period %q may return truncated history", interval, period)
}

// DateRange is a resolved [Start, End) window. End is exclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ResolveDates turns the --date / --start-date / --end-date flags into a window.
//
// Parameters:
//   - date: single inclusive day, exclusive with start and end.
//   - start, end: inclusive bounds. A missing end defaults to start.
//
// Returns:
//   - nil, nil when no date flag was given (the lookback period applies).
//   - a DateRange whose End is the day after the last requested day.
//   - ErrUsage when the flags conflict or end precedes start, ErrValidation on
//     malformed dates.
func ResolveDates(date, start, end string) (*DateRange, error) {
	if date != "" {
		if start != "" || end != "" {
			return nil, apperr.Errorf(apperr.ErrUsage, "--date cannot be used together with --start-date/--end-date")
		}
		d, err := ValidateDate(date)
		if err != nil {
			return nil, err
		}
		return &DateRange{Start: d, End: d.AddDate(0, 0, 1)}, nil
	}
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" {
		return nil, apperr.Errorf(apperr.ErrUsage, "--end-date requires --start-date")
	}
	if end == "" {
		end = start
	}
	s, err := ValidateDate(start)
	if err != nil {
		return nil, err
	}
	e, err := ValidateDate(end)
	if err != nil {
		return nil, err
	}
	if e.Before(s) {
		return nil, apperr.Errorf(apperr.ErrUsage, "end date %s must be >= start date %s", end, start)
	}
	return &DateRange{Start: s, End: e.AddDate(0, 0, 1)}, nil
}
