package intent

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"luna/internal/apperr"
)

type Kind int

const (
	KindApp Kind = iota
	KindFile
	KindFolder
	KindDuration
	KindNumber
	KindPercent
	KindTimeOfDay
	KindDate
	KindQuery
	KindText
	KindAction
	KindURL
	KindString
)

var kindNames = [...]string{
	KindApp:       "app",
	KindFile:      "file",
	KindFolder:    "folder",
	KindDuration:  "duration",
	KindNumber:    "number",
	KindPercent:   "percent",
	KindTimeOfDay: "time",
	KindDate:      "date",
	KindQuery:     "query",
	KindText:      "text",
	KindAction:    "action",
	KindURL:       "url",
	KindString:    "string",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "string"
	}
	return kindNames[k]
}

// ParseKind maps a slot type name to an entity kind. Unknown names map to
// KindString.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "application", "app_name":
		return KindApp
	case "directory", "dir":
		return KindFolder
	case "int", "integer":
		return KindNumber
	case "time_of_day":
		return KindTimeOfDay
	case "link":
		return KindURL
	}
	for i, name := range kindNames {
		if name == s {
			return Kind(i)
		}
	}
	return KindString
}

// Entity is a typed value captured from an utterance. Value renders the
// adapter-facing string form.
type Entity interface {
	Kind() Kind
	Value() string
}

type (
	App     string
	File    string
	Folder  string
	Query   string
	Text    string
	Action  string
	URL     string
	Literal string
	Number  int64
)

func (e App) Kind() Kind     { return KindApp }
func (e File) Kind() Kind    { return KindFile }
func (e Folder) Kind() Kind  { return KindFolder }
func (e Query) Kind() Kind   { return KindQuery }
func (e Text) Kind() Kind    { return KindText }
func (e Action) Kind() Kind  { return KindAction }
func (e URL) Kind() Kind     { return KindURL }
func (e Literal) Kind() Kind { return KindString }
func (e Number) Kind() Kind  { return KindNumber }

func (e App) Value() string     { return string(e) }
func (e File) Value() string    { return string(e) }
func (e Folder) Value() string  { return string(e) }
func (e Query) Value() string   { return string(e) }
func (e Text) Value() string    { return string(e) }
func (e Action) Value() string  { return string(e) }
func (e URL) Value() string     { return string(e) }
func (e Literal) Value() string { return string(e) }
func (e Number) Value() string  { return strconv.FormatInt(int64(e), 10) }

// Duration renders as whole seconds.
type Duration time.Duration

func (e Duration) Kind() Kind { return KindDuration }
func (e Duration) Value() string {
	return strconv.FormatInt(int64(time.Duration(e)/time.Second), 10)
}
func (e Duration) Std() time.Duration { return time.Duration(e) }

// Percent can only be built through NewPercent, so it never exceeds 100.
type Percent struct{ v uint8 }

func NewPercent(v int) (Percent, error) {
	if v < 0 || v > 100 {
		return Percent{}, apperr.Invalid(fmt.Sprintf("percent %d out of range 0..100", v))
	}
	return Percent{v: uint8(v)}, nil
}

func (e Percent) Kind() Kind    { return KindPercent }
func (e Percent) Value() string { return strconv.Itoa(int(e.v)) }
func (e Percent) Int() int      { return int(e.v) }

type TimeOfDay struct{ hour, minute int }

func NewTimeOfDay(h, m int) (TimeOfDay, error) {
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, apperr.Invalid(fmt.Sprintf("time %02d:%02d out of range", h, m))
	}
	return TimeOfDay{hour: h, minute: m}, nil
}

func (e TimeOfDay) Kind() Kind    { return KindTimeOfDay }
func (e TimeOfDay) Value() string { return fmt.Sprintf("%02d:%02d", e.hour, e.minute) }
func (e TimeOfDay) Hour() int     { return e.hour }
func (e TimeOfDay) Minute() int   { return e.minute }

// Next returns the first moment at or after now with this wall-clock time.
func (e TimeOfDay) Next(now time.Time) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), e.hour, e.minute, 0, 0, now.Location())
	if t.Before(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

type Date struct{ year, month, day int }

func NewDate(y, m, d int) (Date, error) {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return Date{}, apperr.Invalid(fmt.Sprintf("date %04d-%02d-%02d does not exist", y, m, d))
	}
	return Date{year: y, month: m, day: d}, nil
}

func DateOf(t time.Time) Date {
	return Date{year: t.Year(), month: int(t.Month()), day: t.Day()}
}

func (e Date) Kind() Kind    { return KindDate }
func (e Date) Value() string { return fmt.Sprintf("%04d-%02d-%02d", e.year, e.month, e.day) }
func (e Date) Time(loc *time.Location) time.Time {
	return time.Date(e.year, time.Month(e.month), e.day, 0, 0, 0, 0, loc)
}

// Entities maps slot names to typed values.
type Entities map[string]Entity

// StringMap is the adapter-boundary form.
func (es Entities) StringMap() map[string]string {
	out := make(map[string]string, len(es))
	for k, v := range es {
		out[k] = v.Value()
	}
	return out
}

func (es Entities) Clone() Entities {
	if es == nil {
		return nil
	}
	return maps.Clone(es)
}

// Primary picks the entity most likely referred to by a pronoun: the first
// app, file, folder or query in that order, then any entity by sorted name.
func (es Entities) Primary() (string, Entity, bool) {
	if len(es) == 0 {
		return "", nil, false
	}
	names := slices.Sorted(maps.Keys(es))
	for _, k := range []Kind{KindApp, KindFile, KindFolder, KindQuery, KindURL} {
		for _, n := range names {
			if es[n].Kind() == k {
				return n, es[n], true
			}
		}
	}
	return names[0], es[names[0]], true
}

func (es Entities) OfKind(k Kind) (Entity, bool) {
	for _, n := range slices.Sorted(maps.Keys(es)) {
		if es[n].Kind() == k {
			return es[n], true
		}
	}
	return nil, false
}
