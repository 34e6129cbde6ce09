// Package intent holds the vocabulary shared by the parser, the context
// store and the planner: intent tags, typed entities, confidence and
// multi-intent segments.
package intent

import (
	"fmt"
	"strings"
)

type Type int

const (
	Unknown Type = iota
	LaunchApp
	CloseApp
	FindFile
	OpenFolder
	SystemControl
	VolumeControl
	WindowManagement
	MediaControl
	SearchWeb
	CreateReminder
	TakeNote
	AnswerQuestion
	GetTime
	GetDate
)

var typeNames = [...]string{
	Unknown:          "unknown",
	LaunchApp:        "launch_app",
	CloseApp:         "close_app",
	FindFile:         "find_file",
	OpenFolder:       "open_folder",
	SystemControl:    "system_control",
	VolumeControl:    "volume_control",
	WindowManagement: "window_management",
	MediaControl:     "media_control",
	SearchWeb:        "search_web",
	CreateReminder:   "create_reminder",
	TakeNote:         "take_note",
	AnswerQuestion:   "answer_question",
	GetTime:          "get_time",
	GetDate:          "get_date",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("intent(%d)", int(t))
	}
	return typeNames[t]
}

// Types lists every known intent except Unknown.
func Types() []Type {
	out := make([]Type, 0, len(typeNames)-1)
	for t := LaunchApp; int(t) < len(typeNames); t++ {
		out = append(out, t)
	}
	return out
}

// ParseType accepts snake_case ("launch_app") and CamelCase ("LaunchApp").
func ParseType(s string) (Type, bool) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for i, name := range typeNames {
		if strings.ReplaceAll(name, "_", "") == key {
			return Type(i), true
		}
	}
	return Unknown, false
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, ok := ParseType(string(b))
	if !ok {
		return fmt.Errorf("unknown intent %q", b)
	}
	*t = v
	return nil
}
