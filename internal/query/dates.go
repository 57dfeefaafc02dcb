package query

import (
	"regexp"
	"strings"
	"time"

	"github.com/charlesparmar/kenko/internal/model"
)

// Explicit date tokens in the formats users actually type.
var explicitDateREs = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`),
	regexp.MustCompile(`\d{1,2}\.\d{1,2}\.\d{4}`),
}

// Layouts tried in order when parsing an explicit date token. Ambiguous
// day/month tokens resolve to whichever layout parses first.
var explicitDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"2/1/2006",
	"1-2-2006",
	"2-1-2006",
}

type relativeRange struct {
	label string
	re    *regexp.Regexp
}

var relativeRanges = []relativeRange{
	{"this_week", regexp.MustCompile(`(this\s+week|current\s+week|past\s+7\s+days)`)},
	{"last_week", regexp.MustCompile(`(last\s+week|previous\s+week|past\s+week)`)},
	{"this_month", regexp.MustCompile(`(this\s+month|current\s+month|past\s+30\s+days)`)},
	{"last_month", regexp.MustCompile(`(last\s+month|previous\s+month|past\s+month)`)},
	{"this_year", regexp.MustCompile(`(this\s+year|current\s+year|past\s+year)`)},
	{"last_year", regexp.MustCompile(`(last\s+year|previous\s+year|past\s+year)`)},
	{"yesterday", regexp.MustCompile(`(yesterday|day\s+before)`)},
	{"today", regexp.MustCompile(`(today|current\s+day)`)},
	{"tomorrow", regexp.MustCompile(`(tomorrow|next\s+day)`)},
}

var monthNumbers = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

const monthAlternation = `(january|february|march|april|may|june|july|august|september|october|november|december)`

var (
	monthEndRE    = regexp.MustCompile(`(?:until|till|up\s+to|through)\s+(?:the\s+)?end\s+of\s+` + monthAlternation)
	monthPeriodRE = regexp.MustCompile(`(?:in|during|for)\s+` + monthAlternation)
	monthSinceRE  = regexp.MustCompile(`(?:since|from|starting)\s+` + monthAlternation)
)

type season struct {
	label      string
	re         *regexp.Regexp
	start, end time.Month
}

var seasons = []season{
	{"spring", regexp.MustCompile(`spring`), time.March, time.May},
	{"summer", regexp.MustCompile(`summer`), time.June, time.August},
	{"autumn", regexp.MustCompile(`(autumn|fall)`), time.September, time.November},
	{"winter", regexp.MustCompile(`winter`), time.December, time.February},
}

// ExtractDateRanges runs four independent extractors over the query: explicit
// date tokens, relative named ranges, month-anchored ranges, and seasonal
// ranges. All hits are returned; consumers OR-combine them.
func (p *Processor) ExtractDateRanges(query string) []model.DateRange {
	q := strings.ToLower(query)
	now := p.now()

	var ranges []model.DateRange
	ranges = append(ranges, extractExplicitDates(q)...)
	ranges = append(ranges, extractRelativeRanges(q, now)...)
	ranges = append(ranges, extractMonthRanges(q, now)...)
	ranges = append(ranges, extractSeasonalRanges(q, now)...)
	return ranges
}

func extractExplicitDates(q string) []model.DateRange {
	var tokens []string
	seen := make(map[string]struct{})
	for _, re := range explicitDateREs {
		for _, tok := range re.FindAllString(q, -1) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			tokens = append(tokens, tok)
		}
	}

	var ranges []model.DateRange
	for _, tok := range tokens {
		// Dotted dates share layout with dashed ones after normalization.
		candidate := strings.ReplaceAll(tok, ".", "-")
		for _, layout := range explicitDateLayouts {
			day, err := time.Parse(layout, candidate)
			if err != nil {
				continue
			}
			ranges = append(ranges, model.DateRange{
				Start:  day,
				End:    day,
				Source: model.RangeExplicit,
				Label:  tok,
			})
			break
		}
	}
	return ranges
}

func extractRelativeRanges(q string, now time.Time) []model.DateRange {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var ranges []model.DateRange
	for _, rr := range relativeRanges {
		if !rr.re.MatchString(q) {
			continue
		}
		var start, end time.Time
		switch rr.label {
		case "this_week":
			start, end = today.AddDate(0, 0, -7), today
		case "last_week":
			start, end = today.AddDate(0, 0, -14), today.AddDate(0, 0, -7)
		case "this_month":
			start, end = today.AddDate(0, 0, -30), today
		case "last_month":
			start, end = today.AddDate(0, 0, -60), today.AddDate(0, 0, -30)
		case "this_year":
			start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
			end = today
		case "last_year":
			start = time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, now.Location())
			end = time.Date(now.Year()-1, time.December, 31, 0, 0, 0, 0, now.Location())
		case "yesterday":
			start, end = today.AddDate(0, 0, -1), today.AddDate(0, 0, -1)
		case "today":
			start, end = today, today
		case "tomorrow":
			start, end = today.AddDate(0, 0, 1), today.AddDate(0, 0, 1)
		}
		ranges = append(ranges, model.DateRange{
			Start:  start,
			End:    end,
			Source: model.RangeRelative,
			Label:  rr.label,
		})
	}
	return ranges
}

// anchorMonthYear picks the year a bare month name refers to: months that
// have already started this year anchor to the current year, everything else
// to the previous year. Fitness questions look backward, not forward.
func anchorMonthYear(month time.Month, now time.Time) int {
	if now.Month() > month {
		return now.Year()
	}
	return now.Year() - 1
}

func lastDayOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, loc).AddDate(0, 1, -1)
}

func extractMonthRanges(q string, now time.Time) []model.DateRange {
	var ranges []model.DateRange

	for _, m := range monthEndRE.FindAllStringSubmatch(q, -1) {
		month := monthNumbers[m[1]]
		year := anchorMonthYear(month, now)
		ranges = append(ranges, model.DateRange{
			Start:  time.Date(year, time.January, 1, 0, 0, 0, 0, now.Location()),
			End:    lastDayOfMonth(year, month, now.Location()),
			Source: model.RangeMonth,
			Label:  "until_end_of_" + m[1],
		})
	}

	for _, m := range monthPeriodRE.FindAllStringSubmatch(q, -1) {
		month := monthNumbers[m[1]]
		year := anchorMonthYear(month, now)
		ranges = append(ranges, model.DateRange{
			Start:  time.Date(year, month, 1, 0, 0, 0, 0, now.Location()),
			End:    lastDayOfMonth(year, month, now.Location()),
			Source: model.RangeMonth,
			Label:  "in_" + m[1],
		})
	}

	for _, m := range monthSinceRE.FindAllStringSubmatch(q, -1) {
		month := monthNumbers[m[1]]
		year := anchorMonthYear(month, now)
		ranges = append(ranges, model.DateRange{
			Start:  time.Date(year, month, 1, 0, 0, 0, 0, now.Location()),
			End:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
			Source: model.RangeMonth,
			Label:  "since_" + m[1],
		})
	}

	return ranges
}

func extractSeasonalRanges(q string, now time.Time) []model.DateRange {
	var ranges []model.DateRange
	for _, s := range seasons {
		if !s.re.MatchString(q) {
			continue
		}
		start := time.Date(now.Year(), s.start, 1, 0, 0, 0, 0, now.Location())
		endYear := now.Year()
		if s.end < s.start {
			// Winter runs into the next calendar year.
			endYear++
		}
		ranges = append(ranges, model.DateRange{
			Start:  start,
			End:    lastDayOfMonth(endYear, s.end, now.Location()),
			Source: model.RangeSeasonal,
			Label:  s.label,
		})
	}
	return ranges
}
