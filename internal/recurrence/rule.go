package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRule is returned for malformed rules, including weekly rules
// with no weekdays and monthly rules with no month days.
var ErrInvalidRule = errors.New("invalid recurrence rule")

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
)

var freqNames = map[Freq]string{
	Daily:   "DAILY",
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
}

var freqFromName = map[string]Freq{
	"DAILY":   Daily,
	"WEEKLY":  Weekly,
	"MONTHLY": Monthly,
}

var dayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// Rule describes when a recurring task is due. Exactly one shape applies:
// daily (no day sets), weekly with a non-empty weekday set, or monthly with
// a non-empty day-of-month set.
type Rule struct {
	Freq       Freq
	ByDay      []time.Weekday // WEEKLY: which weekdays
	ByMonthDay []int          // MONTHLY: which days of month, 1..31
}

// Parse parses a rule string like "FREQ=WEEKLY;BYDAY=MO,WE" or
// "FREQ=MONTHLY;BYMONTHDAY=1,15,31".
func Parse(s string) (Rule, error) {
	if s == "" {
		return Rule{}, fmt.Errorf("%w: empty rule", ErrInvalidRule)
	}

	var r Rule
	var hasFreq bool

	for _, part := range strings.Split(s, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Rule{}, fmt.Errorf("%w: bad part %q", ErrInvalidRule, part)
		}
		key, val := kv[0], kv[1]

		switch key {
		case "FREQ":
			f, ok := freqFromName[val]
			if !ok {
				return Rule{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, val)
			}
			r.Freq = f
			hasFreq = true

		case "BYDAY":
			for _, d := range strings.Split(val, ",") {
				wd, ok := dayNames[strings.TrimSpace(d)]
				if !ok {
					return Rule{}, fmt.Errorf("%w: unknown day %q", ErrInvalidRule, d)
				}
				r.ByDay = append(r.ByDay, wd)
			}

		case "BYMONTHDAY":
			for _, d := range strings.Split(val, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(d))
				if err != nil || n < 1 || n > 31 {
					return Rule{}, fmt.Errorf("%w: bad month day %q", ErrInvalidRule, d)
				}
				r.ByMonthDay = append(r.ByMonthDay, n)
			}

		default:
			return Rule{}, fmt.Errorf("%w: unsupported key %q", ErrInvalidRule, key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("%w: FREQ is required", ErrInvalidRule)
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks that the rule's day sets match its declared shape.
func (r Rule) Validate() error {
	switch r.Freq {
	case Daily:
		if len(r.ByDay) > 0 || len(r.ByMonthDay) > 0 {
			return fmt.Errorf("%w: daily rules carry no day sets", ErrInvalidRule)
		}
	case Weekly:
		if len(r.ByDay) == 0 {
			return fmt.Errorf("%w: weekly rule with empty BYDAY", ErrInvalidRule)
		}
		if len(r.ByMonthDay) > 0 {
			return fmt.Errorf("%w: weekly rule with BYMONTHDAY", ErrInvalidRule)
		}
	case Monthly:
		if len(r.ByMonthDay) == 0 {
			return fmt.Errorf("%w: monthly rule with empty BYMONTHDAY", ErrInvalidRule)
		}
		if len(r.ByDay) > 0 {
			return fmt.Errorf("%w: monthly rule with BYDAY", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown frequency %d", ErrInvalidRule, r.Freq)
	}
	return nil
}

// String serializes the rule back to rule-string form.
func (r Rule) String() string {
	parts := []string{"FREQ=" + freqNames[r.Freq]}

	if len(r.ByDay) > 0 {
		days := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			days[i] = dayAbbrev[d]
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}

	if len(r.ByMonthDay) > 0 {
		days := make([]string, len(r.ByMonthDay))
		for i, d := range r.ByMonthDay {
			days[i] = strconv.Itoa(d)
		}
		parts = append(parts, "BYMONTHDAY="+strings.Join(days, ","))
	}

	return strings.Join(parts, ";")
}

// IsDueOn reports whether the rule makes a task due on the given calendar
// date. Month days beyond the month's length (31 in February) simply never
// match; they are not clamped to the month's last day.
func IsDueOn(r Rule, date time.Time) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}

	switch r.Freq {
	case Daily:
		return true, nil
	case Weekly:
		wd := date.Weekday()
		for _, d := range r.ByDay {
			if d == wd {
				return true, nil
			}
		}
		return false, nil
	case Monthly:
		day := date.Day()
		for _, d := range r.ByMonthDay {
			if d == day {
				return true, nil
			}
		}
		return false, nil
	}
	return false, ErrInvalidRule
}

// NextDueDate returns the smallest date strictly after from on which the
// rule is due, at midnight in from's location.
func NextDueDate(r Rule, from time.Time) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}

	from = startOfDay(from)

	switch r.Freq {
	case Daily:
		return from.AddDate(0, 0, 1), nil

	case Weekly:
		// At most 7 steps until a weekday in the set comes around.
		for i := 1; i <= 7; i++ {
			candidate := from.AddDate(0, 0, i)
			for _, d := range r.ByDay {
				if candidate.Weekday() == d {
					return candidate, nil
				}
			}
		}

	case Monthly:
		days := append([]int(nil), r.ByMonthDay...)
		sort.Ints(days)
		// Walk forward month by month; a rule of only day 31 can skip
		// several short months in a row, but never more than seven.
		year, month, _ := from.AddDate(0, 0, 1).Date()
		first := from.AddDate(0, 0, 1).Day()
		for m := 0; m < 48; m++ {
			limit := daysInMonth(year, month)
			for _, d := range days {
				if m == 0 && d < first {
					continue
				}
				if d <= limit {
					return time.Date(year, month, d, 0, 0, 0, 0, from.Location()), nil
				}
			}
			month++
			if month > time.December {
				month = time.January
				year++
			}
		}
	}

	return time.Time{}, fmt.Errorf("%w: no next occurrence", ErrInvalidRule)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
