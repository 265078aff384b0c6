// Package units provides physical quantity value types used by MD protocols.
package units

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/mdrun/internal/errdefs"
)

// TimeUnit is a canonical, upper-case time unit name.
type TimeUnit string

const (
	Week        TimeUnit = "WEEK"
	Day         TimeUnit = "DAY"
	Hour        TimeUnit = "HOUR"
	Minute      TimeUnit = "MINUTE"
	Second      TimeUnit = "SECOND"
	Millisecond TimeUnit = "MILLISECOND"
	Nanosecond  TimeUnit = "NANOSECOND"
	Picosecond  TimeUnit = "PICOSECOND"
	Femtosecond TimeUnit = "FEMTOSECOND"
)

// femtoseconds per unit. Integral values keep common conversions exact.
var timeScale = map[TimeUnit]float64{
	Week:        6.048e20,
	Day:         8.64e19,
	Hour:        3.6e18,
	Minute:      6e16,
	Second:      1e15,
	Millisecond: 1e12,
	Nanosecond:  1e6,
	Picosecond:  1e3,
	Femtosecond: 1,
}

var timeAbbreviations = map[string]TimeUnit{
	"WK":  Week,
	"HR":  Hour,
	"MIN": Minute,
	"SEC": Second,
	"MS":  Millisecond,
	"NS":  Nanosecond,
	"PS":  Picosecond,
	"FS":  Femtosecond,
}

var timePrintFormat = map[TimeUnit]string{
	Week:        "week",
	Day:         "day",
	Hour:        "hour",
	Minute:      "min",
	Second:      "sec",
	Millisecond: "ms",
	Nanosecond:  "ns",
	Picosecond:  "ps",
	Femtosecond: "fs",
}

var quantityPattern = regexp.MustCompile(`^\s*([-+]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][-+]?[0-9]+)?)\s*(.*?)\s*$`)

// Time is a non-negative duration expressed in a named unit.
type Time struct {
	Magnitude float64
	Unit      TimeUnit
}

// NewTime builds a Time after normalising unit. Negative magnitudes are rejected.
func NewTime(magnitude float64, unit string) (Time, error) {
	u, err := ParseTimeUnit(unit)
	if err != nil {
		return Time{}, err
	}
	if magnitude < 0 || math.IsNaN(magnitude) || math.IsInf(magnitude, 0) {
		return Time{}, errdefs.InvalidArgument("magnitude", "time must be a finite, non-negative value, got %v", magnitude)
	}
	return Time{Magnitude: magnitude, Unit: u}, nil
}

// MustTime is NewTime for constant inputs; it panics on error.
func MustTime(magnitude float64, unit string) Time {
	t, err := NewTime(magnitude, unit)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTime parses strings such as "2 ns", "0.5ps" or "10 picoseconds".
func ParseTime(s string) (Time, error) {
	m := quantityPattern.FindStringSubmatch(s)
	if m == nil || m[2] == "" {
		return Time{}, errdefs.InvalidArgument("time", "could not parse %q", s)
	}
	mag, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Time{}, errdefs.InvalidArgument("time", "could not parse magnitude in %q", s)
	}
	return NewTime(mag, m[2])
}

// ParseTimeUnit normalises a unit name: whitespace is removed, case folded,
// plural forms and abbreviations accepted.
func ParseTimeUnit(unit string) (TimeUnit, error) {
	u := strings.ToUpper(strings.ReplaceAll(unit, " ", ""))
	if _, ok := timeScale[TimeUnit(u)]; ok {
		return TimeUnit(u), nil
	}
	if len(u) > 1 {
		if _, ok := timeScale[TimeUnit(u[:len(u)-1])]; ok {
			return TimeUnit(u[:len(u)-1]), nil
		}
	}
	if full, ok := timeAbbreviations[u]; ok {
		return full, nil
	}
	if len(u) > 1 {
		if full, ok := timeAbbreviations[u[:len(u)-1]]; ok {
			return full, nil
		}
	}
	return "", errdefs.InvalidArgument("unit", "unsupported time unit %q (supported: %s)", unit, strings.Join(SupportedTimeUnits(), ", "))
}

// SupportedTimeUnits lists canonical unit names, largest first.
func SupportedTimeUnits() []string {
	units := make([]TimeUnit, 0, len(timeScale))
	for u := range timeScale {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return timeScale[units[i]] > timeScale[units[j]] })
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = string(u)
	}
	return out
}

// To converts t into unit.
func (t Time) To(unit TimeUnit) Time {
	from, ok := timeScale[t.Unit]
	if !ok {
		from = timeScale[Picosecond]
	}
	to, ok := timeScale[unit]
	if !ok {
		panic(fmt.Sprintf("units: unknown time unit %q", unit))
	}
	return Time{Magnitude: t.Magnitude * from / to, Unit: unit}
}

func (t Time) Weeks() Time        { return t.To(Week) }
func (t Time) Days() Time         { return t.To(Day) }
func (t Time) Hours() Time        { return t.To(Hour) }
func (t Time) Minutes() Time      { return t.To(Minute) }
func (t Time) Seconds() Time      { return t.To(Second) }
func (t Time) Milliseconds() Time { return t.To(Millisecond) }
func (t Time) Nanoseconds() Time  { return t.To(Nanosecond) }
func (t Time) Picoseconds() Time  { return t.To(Picosecond) }
func (t Time) Femtoseconds() Time { return t.To(Femtosecond) }

// IsZero reports whether t has no magnitude.
func (t Time) IsZero() bool { return t.Magnitude == 0 }

// Add returns t+o in t's unit.
func (t Time) Add(o Time) Time {
	return Time{Magnitude: t.Magnitude + o.To(t.unit()).Magnitude, Unit: t.unit()}
}

// Sub returns t-o in t's unit. A negative result is an error.
func (t Time) Sub(o Time) (Time, error) {
	mag := t.Magnitude - o.To(t.unit()).Magnitude
	if mag < 0 {
		return Time{}, errdefs.InvalidArgument("time", "subtraction result %v %s is negative", mag, t.unit())
	}
	return Time{Magnitude: mag, Unit: t.unit()}, nil
}

// Scale multiplies t by a non-negative factor.
func (t Time) Scale(f float64) (Time, error) {
	if f < 0 {
		return Time{}, errdefs.InvalidArgument("factor", "cannot scale a time by %v", f)
	}
	return Time{Magnitude: t.Magnitude * f, Unit: t.unit()}, nil
}

// Div returns the dimensionless ratio t/o.
func (t Time) Div(o Time) float64 {
	return t.Femtoseconds().Magnitude / o.Femtoseconds().Magnitude
}

// Compare returns -1, 0 or +1.
func (t Time) Compare(o Time) int {
	a, b := t.Femtoseconds().Magnitude, o.Femtoseconds().Magnitude
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (t Time) String() string {
	abbrev := timePrintFormat[t.unit()]
	if t.Magnitude > 1 && !strings.HasSuffix(abbrev, "s") {
		abbrev += "s"
	}
	if abs := math.Abs(t.Magnitude); abs > 1e4 || abs < 1e-4 {
		return fmt.Sprintf("%.4e %s", t.Magnitude, abbrev)
	}
	return fmt.Sprintf("%5.4f %s", t.Magnitude, abbrev)
}

// MarshalYAML writes the compact form, e.g. "2 ns".
func (t Time) MarshalYAML() (any, error) {
	return strconv.FormatFloat(t.Magnitude, 'g', -1, 64) + " " + timePrintFormat[t.unit()], nil
}

// UnmarshalYAML accepts the string form.
func (t *Time) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("time must be a string such as \"2 ns\": %w", err)
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// unit defaults the zero value to picoseconds.
func (t Time) unit() TimeUnit {
	if t.Unit == "" {
		return Picosecond
	}
	return t.Unit
}
