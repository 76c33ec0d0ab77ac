package types

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dateShape     = regexp.MustCompile(`^(-?\d{4,})-(\d{2})-(\d{2})$`)
	clockShape    = regexp.MustCompile(`^(-?\d{1,2}):(-?\d{1,2})(?::(-?\d{1,2})(\.\d+)?)?$`)
	dateTimeShape = regexp.MustCompile(`^(-?\d{4,}-\d{2}-\d{2})T(\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?)(Z|[+-]\d{2}(?::?\d{2})?)?$`)
	zoneShape     = regexp.MustCompile(`(Z|[+-]\d{2}(?::?\d{2})?)$`)
)

var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

type clock struct {
	hour, minute, second int
	seconds              bool
	fraction             string
	zone                 string
}

func (c clock) String() string {
	out := fmt.Sprintf("%02d:%02d", c.hour, c.minute)
	if c.seconds {
		out += fmt.Sprintf(":%02d", c.second)
	}
	return out + c.fraction + c.zone
}

func fromEpochDays(days float64, xmlType string) string {
	if math.IsNaN(days) || math.IsInf(days, 0) {
		return ""
	}
	moment := epoch.Add(time.Duration(days * float64(24*time.Hour)))
	if xmlType == Date {
		return moment.Format("2006-01-02")
	}
	return moment.Format("2006-01-02T15:04:05.000Z07:00")
}

// parseDate accepts YYYY-MM-DD and rejects impossible calendar dates.
func parseDate(text string) (time.Time, bool) {
	match := dateShape.FindStringSubmatch(text)
	if match == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	day, _ := strconv.Atoi(match[3])
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if parsed.Day() != day || int(parsed.Month()) != month {
		return time.Time{}, false
	}
	return parsed, true
}

func convertDate(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, 'T'); i > 0 {
		text = text[:i]
	}
	if _, ok := parseDate(text); !ok {
		return ""
	}
	return text
}

// splitZone separates a trailing Z or numeric offset.
func splitZone(text string) (string, string) {
	loc := zoneShape.FindStringIndex(text)
	if loc == nil {
		return text, ""
	}
	return text[:loc[0]], text[loc[0]:]
}

// normalizeZone expands -06 and -0630 to the -06:00 form.
func normalizeZone(zone string) string {
	switch {
	case zone == "" || zone == "Z":
		return zone
	case len(zone) == 3:
		return zone + ":00"
	case len(zone) == 5:
		return zone[:3] + ":" + zone[3:]
	}
	return zone
}

func validZone(zone string) bool {
	if zone == "" || zone == "Z" {
		return true
	}
	zone = normalizeZone(zone)
	hours, err := strconv.Atoi(zone[1:3])
	if err != nil {
		return false
	}
	minutes, err := strconv.Atoi(zone[4:6])
	if err != nil {
		return false
	}
	return hours <= 23 && minutes <= 59
}

// parseClock accepts h:m[:s[.fff]][zone] with real clock ranges.
func parseClock(text string) (clock, bool) {
	main, zone := splitZone(text)
	match := clockShape.FindStringSubmatch(main)
	if match == nil || !validZone(zone) {
		return clock{}, false
	}
	c := clock{fraction: match[4], zone: zone, seconds: match[3] != ""}
	c.hour, _ = strconv.Atoi(match[1])
	c.minute, _ = strconv.Atoi(match[2])
	if c.seconds {
		c.second, _ = strconv.Atoi(match[3])
	}
	if c.hour < 0 || c.hour > 23 || c.minute < 0 || c.minute > 59 || c.second < 0 || c.second > 59 {
		return clock{}, false
	}
	return c, true
}

func convertTime(text string) string {
	c, ok := parseClock(strings.TrimSpace(text))
	if !ok {
		return ""
	}
	return c.String()
}

// convertDateTime normalizes the offset of anything shaped like a dateTime
// and leaves range problems for validation.
func convertDateTime(text string) string {
	match := dateTimeShape.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return ""
	}
	return match[1] + "T" + match[2] + normalizeZone(match[3])
}

func validDateTime(text string) bool {
	match := dateTimeShape.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	if _, ok := parseDate(match[1]); !ok {
		return false
	}
	_, ok := parseClock(match[2] + match[3])
	return ok
}
