package nlu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"luna/internal/apperr"
	"luna/internal/intent"
)

var smallNumbers = map[string]int{
	"zero": 0, "a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16, "seventeen": 17,
	"eighteen": 18, "nineteen": 19,
}

var tens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// numberPrefix reads a number written in digits or words from the start of
// toks and reports how many tokens it used.
func numberPrefix(toks []string) (int, int, bool) {
	if len(toks) == 0 {
		return 0, 0, false
	}
	if n, err := strconv.Atoi(toks[0]); err == nil {
		return n, 1, true
	}

	total, cur, used := 0, 0, 0
scan:
	for ; used < len(toks); used++ {
		w := toks[used]
		switch {
		case w == "and" && used > 0:
			if used+1 >= len(toks) || !isNumberWord(toks[used+1]) {
				break scan
			}
		case w == "hundred" && used > 0:
			cur = max(cur, 1) * 100
		case w == "thousand" && used > 0:
			total += max(cur, 1) * 1000
			cur = 0
		case (w == "a" || w == "an") && used > 0:
			break scan
		default:
			v, ok := wordNumber(w)
			if !ok {
				break scan
			}
			cur += v
		}
	}
	if used == 0 {
		return 0, 0, false
	}
	return total + cur, used, true
}

func wordNumber(w string) (int, bool) {
	if v, ok := smallNumbers[w]; ok {
		return v, true
	}
	v, ok := tens[w]
	return v, ok
}

func isNumberWord(w string) bool {
	_, ok := wordNumber(w)
	return ok && w != "a" && w != "an"
}

func tokens(s string) []string {
	s = strings.ToLower(strings.ReplaceAll(s, "-", " "))
	return strings.Fields(s)
}

func ParseNumber(s string) (int64, error) {
	toks := tokens(s)
	n, used, ok := numberPrefix(toks)
	if !ok || used != len(toks) {
		return 0, apperr.Invalid(fmt.Sprintf("not a number: %q", s))
	}
	return int64(n), nil
}

var durationUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
}

var compactDuration = regexp.MustCompile(`^(\d+)(s|sec|m|min|h|hr)$`)

// ParseDuration understands "10 minutes", "ten seconds", "an hour and a
// half", "half an hour", "1h30m" and "90s".
func ParseDuration(s string) (time.Duration, error) {
	raw := strings.TrimSpace(strings.ToLower(s))
	if d, err := time.ParseDuration(strings.ReplaceAll(raw, " ", "")); err == nil && d > 0 {
		return d, nil
	}

	toks := tokens(raw)
	var total time.Duration
	for i := 0; i < len(toks); {
		switch {
		case toks[i] == "and" || toks[i] == "for":
			i++
			continue
		case toks[i] == "half" && i+2 < len(toks) && (toks[i+1] == "an" || toks[i+1] == "a"):
			if u, ok := durationUnits[toks[i+2]]; ok {
				total += u / 2
				i += 3
				continue
			}
		case toks[i] == "a" && i+1 < len(toks) && toks[i+1] == "half" && total > 0:
			total += lastUnit(toks[:i]) / 2
			i += 2
			continue
		}
		if m := compactDuration.FindStringSubmatch(toks[i]); m != nil {
			n, _ := strconv.Atoi(m[1])
			total += time.Duration(n) * durationUnits[m[2]]
			i++
			continue
		}
		n, used, ok := numberPrefix(toks[i:])
		if !ok || i+used >= len(toks) {
			return 0, apperr.Invalid(fmt.Sprintf("not a duration: %q", s))
		}
		u, ok := durationUnits[toks[i+used]]
		if !ok {
			return 0, apperr.Invalid(fmt.Sprintf("not a duration: %q", s))
		}
		total += time.Duration(n) * u
		i += used + 1
	}
	if total <= 0 {
		return 0, apperr.Invalid(fmt.Sprintf("not a duration: %q", s))
	}
	return total, nil
}

func lastUnit(toks []string) time.Duration {
	for i := len(toks) - 1; i >= 0; i-- {
		if u, ok := durationUnits[toks[i]]; ok {
			return u
		}
	}
	return time.Hour
}

func ParsePercent(s string) (intent.Percent, error) {
	raw := strings.TrimSpace(strings.ToLower(s))
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "percent")
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "per cent"))

	switch raw {
	case "max", "maximum", "full", "all the way":
		return intent.NewPercent(100)
	case "half":
		return intent.NewPercent(50)
	case "off", "min", "minimum", "nothing":
		return intent.NewPercent(0)
	}
	n, err := ParseNumber(raw)
	if err != nil {
		return intent.Percent{}, apperr.Invalid(fmt.Sprintf("not a percentage: %q", s))
	}
	return intent.NewPercent(int(n))
}

var clockTime = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?$`)

// ParseTime understands "7:30", "19:00", "7 pm", "seven thirty pm", "noon"
// and "midnight".
func ParseTime(s string) (intent.TimeOfDay, error) {
	raw := strings.TrimSpace(strings.ToLower(s))
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "o'clock"))
	switch raw {
	case "noon", "midday":
		return intent.NewTimeOfDay(12, 0)
	case "midnight":
		return intent.NewTimeOfDay(0, 0)
	}

	if m := clockTime.FindStringSubmatch(raw); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		return meridiem(h, minute, m[3])
	}

	toks := tokens(raw)
	suffix := ""
	if n := len(toks); n > 0 {
		switch toks[n-1] {
		case "am", "pm", "a.m.", "p.m.":
			suffix = toks[n-1]
			toks = toks[:n-1]
		}
	}
	if len(toks) == 0 {
		return intent.TimeOfDay{}, apperr.Invalid(fmt.Sprintf("not a time: %q", s))
	}
	h, ok := wordNumber(toks[0])
	if !ok || toks[0] == "a" || toks[0] == "an" {
		return intent.TimeOfDay{}, apperr.Invalid(fmt.Sprintf("not a time: %q", s))
	}
	minute := 0
	if rest := toks[1:]; len(rest) > 0 {
		m, used, ok := numberPrefix(rest)
		if !ok || used != len(rest) {
			return intent.TimeOfDay{}, apperr.Invalid(fmt.Sprintf("not a time: %q", s))
		}
		minute = m
	}
	return meridiem(h, minute, suffix)
}

func meridiem(h, m int, suffix string) (intent.TimeOfDay, error) {
	switch strings.ReplaceAll(suffix, ".", "") {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	return intent.NewTimeOfDay(h, m)
}

var isoDate = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)

// ParseDate understands "today", "tomorrow", "yesterday", weekday names
// (next occurrence) and ISO dates.
func ParseDate(s string, now time.Time) (intent.Date, error) {
	raw := strings.TrimSpace(strings.ToLower(s))
	switch raw {
	case "today", "tonight":
		return intent.DateOf(now), nil
	case "tomorrow":
		return intent.DateOf(now.AddDate(0, 0, 1)), nil
	case "yesterday":
		return intent.DateOf(now.AddDate(0, 0, -1)), nil
	}
	if m := isoDate.FindStringSubmatch(raw); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return intent.NewDate(y, mo, d)
	}

	day := strings.TrimPrefix(strings.TrimPrefix(raw, "next "), "on ")
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.ToLower(wd.String()) != day {
			continue
		}
		ahead := (int(wd) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return intent.DateOf(now.AddDate(0, 0, ahead)), nil
	}
	return intent.Date{}, apperr.Invalid(fmt.Sprintf("not a date: %q", s))
}

var fillerSuffixes = []string{" please", " for me", " now"}

func cleanValue(raw string) string {
	v := strings.TrimSpace(raw)
	for _, suf := range fillerSuffixes {
		v = strings.TrimSuffix(v, suf)
	}
	return strings.Trim(v, " \"'")
}

// TypeEntity converts a raw capture into a typed entity using the slot's
// parser or, failing that, its type.
func TypeEntity(slot *CompiledSlot, raw string, now time.Time) (intent.Entity, error) {
	v := cleanValue(raw)
	if v == "" {
		return nil, apperr.Invalid("empty slot value")
	}
	if slot == nil {
		return intent.Literal(v), nil
	}
	if !slot.Allows(v) {
		return nil, apperr.Invalid(fmt.Sprintf("slot %s rejects %q", slot.Name, v))
	}

	kind := slot.Kind
	switch slot.Parser {
	case "duration":
		kind = intent.KindDuration
	case "percent":
		kind = intent.KindPercent
	case "number":
		kind = intent.KindNumber
	case "time":
		kind = intent.KindTimeOfDay
	case "date":
		kind = intent.KindDate
	}

	switch kind {
	case intent.KindDuration:
		d, err := ParseDuration(v)
		return intent.Duration(d), err
	case intent.KindPercent:
		return ParsePercent(v)
	case intent.KindNumber:
		n, err := ParseNumber(v)
		return intent.Number(n), err
	case intent.KindTimeOfDay:
		return ParseTime(v)
	case intent.KindDate:
		return ParseDate(v, now)
	case intent.KindApp:
		return intent.App(v), nil
	case intent.KindFile:
		return intent.File(v), nil
	case intent.KindFolder:
		return intent.Folder(v), nil
	case intent.KindQuery:
		return intent.Query(v), nil
	case intent.KindText:
		return intent.Text(v), nil
	case intent.KindAction:
		return intent.Action(strings.ToLower(v)), nil
	case intent.KindURL:
		return intent.URL(v), nil
	}
	return intent.Literal(v), nil
}
