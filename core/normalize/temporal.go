package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Precision is the finest unit a parsed date-time keeps.
type Precision uint8

const (
	// Subsecond keeps the value as parsed.
	Subsecond Precision = iota

	// Second truncates fractional seconds.
	Second

	// Minute truncates seconds.
	Minute

	// Hour truncates minutes.
	Hour

	// Day truncates to midnight.
	Day
)

// ParsePrecision returns the precision named s.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(s) {
	case "", "subsecond", "nanosecond":
		return Subsecond, nil
	case "second":
		return Second, nil
	case "minute":
		return Minute, nil
	case "hour":
		return Hour, nil
	case "day":
		return Day, nil
	default:
		return 0, fmt.Errorf("unknown precision %q", s)
	}
}

// fieldOrder is the order of day, month and year in a numeric date.
type fieldOrder uint8

const (
	dayMonthYear fieldOrder = iota
	monthDayYear
	yearMonthDay
)

// localeOrders pairs the locales the parser knows with their numeric date
// order. The first entry is the fallback for unmatched locales.
var localeOrders = []struct {
	tag   language.Tag
	order fieldOrder
}{
	{language.English, monthDayYear},
	{language.AmericanEnglish, monthDayYear},
	{language.BritishEnglish, dayMonthYear},
	{language.Dutch, dayMonthYear},
	{language.German, dayMonthYear},
	{language.French, dayMonthYear},
	{language.Spanish, dayMonthYear},
	{language.Italian, dayMonthYear},
	{language.Portuguese, dayMonthYear},
	{language.Danish, dayMonthYear},
	{language.Norwegian, dayMonthYear},
	{language.Polish, dayMonthYear},
	{language.Russian, dayMonthYear},
	{language.Swedish, yearMonthDay},
	{language.Hungarian, yearMonthDay},
	{language.Japanese, yearMonthDay},
	{language.Chinese, yearMonthDay},
	{language.Korean, yearMonthDay},
}

var localeMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(localeOrders))
	for i, lo := range localeOrders {
		tags[i] = lo.tag
	}
	return language.NewMatcher(tags)
}()

// twoDigitYearPivot splits two-digit years between centuries: below the
// pivot is 20xx, at or above it 19xx.
const twoDigitYearPivot = 30

// LocaleParser parses numeric dates and times in the conventions of one
// locale.
type LocaleParser struct {
	tag       language.Tag
	order     fieldOrder
	location  *time.Location
	precision Precision
}

// Option configures a LocaleParser.
type Option func(*LocaleParser)

// WithLocation sets the zone for values without an explicit offset.
func WithLocation(loc *time.Location) Option {
	return func(p *LocaleParser) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithPrecision sets the precision date-times are truncated to.
func WithPrecision(precision Precision) Option {
	return func(p *LocaleParser) {
		p.precision = precision
	}
}

// NewLocaleParser creates a parser for the BCP 47 locale tag.
func NewLocaleParser(locale string, opts ...Option) (*LocaleParser, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}

	_, idx, _ := localeMatcher.Match(tag)
	p := &LocaleParser{
		tag:      tag,
		order:    localeOrders[idx].order,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Locale returns the parser's locale tag.
func (p *LocaleParser) Locale() language.Tag {
	return p.tag
}

// Parse implements TemporalParser. Numeric dates are read in the locale's
// day/month/year order unless the first component has four digits, which
// is always year-month-day. An optional time of day (HH:MM[:SS[.frac]])
// with an optional Z or ±HH:MM offset may follow after a space or "T".
func (p *LocaleParser) Parse(s string, kind Kind) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	datePart, timePart := s, ""
	if i := strings.IndexAny(s, " T"); i > 0 {
		datePart, timePart = s[:i], strings.TrimSpace(s[i+1:])
	}

	year, month, day, ok := p.parseDate(datePart)
	if !ok {
		return time.Time{}, false
	}

	loc := p.location
	var hour, minute, sec, nsec int
	if timePart != "" {
		hour, minute, sec, nsec, loc, ok = parseClock(timePart, loc)
		if !ok {
			return time.Time{}, false
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, nsec, loc)
	if kind == Date {
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), true
	}
	return truncate(t, p.precision), true
}

func (p *LocaleParser) parseDate(s string) (year, month, day int, ok bool) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '/' || r == '.'
	})
	if len(parts) != 3 {
		return 0, 0, 0, false
	}

	nums := make([]int, 3)
	for i, part := range parts {
		if len(part) == 0 || len(part) > 4 {
			return 0, 0, 0, false
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, 0, 0, false
		}
		nums[i] = n
	}

	order := p.order
	if len(parts[0]) == 4 {
		order = yearMonthDay
	}

	var yearText string
	switch order {
	case yearMonthDay:
		year, month, day, yearText = nums[0], nums[1], nums[2], parts[0]
	case monthDayYear:
		month, day, year, yearText = nums[0], nums[1], nums[2], parts[2]
	default:
		day, month, year, yearText = nums[0], nums[1], nums[2], parts[2]
	}

	switch len(yearText) {
	case 2:
		if year < twoDigitYearPivot {
			year += 2000
		} else {
			year += 1900
		}
	case 4:
	default:
		return 0, 0, 0, false
	}

	if month < 1 || month > 12 || day < 1 || day > daysIn(time.Month(month), year) {
		return 0, 0, 0, false
	}
	return year, month, day, true
}

func parseClock(s string, loc *time.Location) (hour, minute, sec, nsec int, zone *time.Location, ok bool) {
	zone = loc
	switch {
	case strings.HasSuffix(s, "Z"):
		s, zone = strings.TrimSuffix(s, "Z"), time.UTC
	case len(s) > 6 && (s[len(s)-6] == '+' || s[len(s)-6] == '-') && s[len(s)-3] == ':':
		offset := s[len(s)-6:]
		h, err1 := strconv.Atoi(offset[1:3])
		m, err2 := strconv.Atoi(offset[4:6])
		if err1 != nil || err2 != nil || h > 23 || m > 59 {
			return 0, 0, 0, 0, nil, false
		}
		secs := h*3600 + m*60
		if offset[0] == '-' {
			secs = -secs
		}
		s, zone = strings.TrimSpace(s[:len(s)-6]), time.FixedZone(offset, secs)
	}

	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, 0, 0, 0, nil, false
	}

	var err error
	if hour, err = strconv.Atoi(fields[0]); err != nil || hour < 0 || hour > 23 {
		return 0, 0, 0, 0, nil, false
	}
	if minute, err = strconv.Atoi(fields[1]); err != nil || minute < 0 || minute > 59 || len(fields[1]) != 2 {
		return 0, 0, 0, 0, nil, false
	}
	if len(fields) == 3 {
		secText, frac, hasFrac := strings.Cut(fields[2], ".")
		if sec, err = strconv.Atoi(secText); err != nil || sec < 0 || sec > 59 || len(secText) != 2 {
			return 0, 0, 0, 0, nil, false
		}
		if hasFrac {
			if frac == "" || len(frac) > 9 {
				return 0, 0, 0, 0, nil, false
			}
			n, err := strconv.Atoi(frac)
			if err != nil || n < 0 {
				return 0, 0, 0, 0, nil, false
			}
			for i := len(frac); i < 9; i++ {
				n *= 10
			}
			nsec = n
		}
	}
	return hour, minute, sec, nsec, zone, true
}

func truncate(t time.Time, precision Precision) time.Time {
	switch precision {
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case Minute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
	case Second:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, t.Location())
	default:
		return t
	}
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
