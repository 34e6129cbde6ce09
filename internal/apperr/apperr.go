package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Code int

const (
	AudioCapture           Code = 1000
	AudioDeviceNotFound    Code = 1001
	AudioUnsupportedFormat Code = 1002
	AudioStream            Code = 1003

	WakeModelMissing Code = 1100
	WakeDetection    Code = 1101

	STTModelMissing  Code = 1200
	STTTranscription Code = 1201
	STTAudioTooShort Code = 1202

	ParseFailed      Code = 1300
	NotUnderstood    Code = 1301
	Ambiguous        Code = 1302
	InvalidParameter Code = 1303

	AppNotFound Code = 1400
	AppLaunch   Code = 1401
	AppClose    Code = 1402

	FileNotFound     Code = 1500
	FileAccessDenied Code = 1501
	FileOperation    Code = 1502

	SystemOperation  Code = 1600
	PermissionDenied Code = 1601
	Timeout          Code = 1602
	Cancelled        Code = 1603

	ConfigLoad    Code = 1700
	ConfigInvalid Code = 1701
	ConfigSave    Code = 1702

	DatabaseLoad      Code = 1800
	DatabaseSave      Code = 1801
	DatabaseCorrupted Code = 1802

	Unknown Code = 9000
)

type Category string

const (
	CategoryAudio         Category = "audio"
	CategoryWakeWord      Category = "wake_word"
	CategorySTT           Category = "stt"
	CategoryParsing       Category = "parsing"
	CategoryApplication   Category = "application"
	CategoryFile          Category = "file"
	CategorySystem        Category = "system"
	CategoryConfiguration Category = "configuration"
	CategoryDatabase      Category = "database"
	CategoryUnknown       Category = "unknown"
)

func (c Code) Category() Category {
	switch {
	case c >= 1000 && c < 1100:
		return CategoryAudio
	case c >= 1100 && c < 1200:
		return CategoryWakeWord
	case c >= 1200 && c < 1300:
		return CategorySTT
	case c >= 1300 && c < 1400:
		return CategoryParsing
	case c >= 1400 && c < 1500:
		return CategoryApplication
	case c >= 1500 && c < 1600:
		return CategoryFile
	case c >= 1600 && c < 1700:
		return CategorySystem
	case c >= 1700 && c < 1800:
		return CategoryConfiguration
	case c >= 1800 && c < 1900:
		return CategoryDatabase
	default:
		return CategoryUnknown
	}
}

// Error is the typed error carried across component boundaries.
// Subject is the thing the error is about (an app name, a path) and is
// used to phrase the user message.
type Error struct {
	Code                 Code
	Message              string
	Subject              string
	Err                  error
	Recoverable          bool
	RequiresNotification bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Category() Category { return e.Code.Category() }

// Is matches another *Error by code so callers can write
// errors.Is(err, &apperr.Error{Code: apperr.Cancelled}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) UserMessage() string {
	switch e.Code {
	case AppNotFound:
		return fmt.Sprintf("I couldn't find the application '%s'", e.Subject)
	case AppLaunch:
		return fmt.Sprintf("I couldn't start '%s'", e.Subject)
	case AppClose:
		return fmt.Sprintf("I couldn't close '%s'", e.Subject)
	case FileNotFound:
		return fmt.Sprintf("I couldn't find a file matching '%s'", e.Subject)
	case FileAccessDenied:
		return fmt.Sprintf("I'm not allowed to open '%s'", e.Subject)
	case NotUnderstood, ParseFailed:
		return "Sorry, I didn't understand that"
	case Ambiguous:
		return "I'm not sure what you meant, could you rephrase?"
	case Cancelled:
		return "Okay, cancelled"
	case Timeout:
		return "That took too long, I gave up"
	case PermissionDenied:
		return "I don't have permission to do that"
	case STTAudioTooShort:
		return "I didn't catch that"
	}

	switch e.Category() {
	case CategoryAudio, CategoryWakeWord:
		return "There is a problem with the microphone"
	case CategorySTT:
		return "I couldn't transcribe what you said"
	case CategorySystem:
		return "The system didn't let me do that"
	case CategoryConfiguration:
		return "My configuration looks broken"
	case CategoryDatabase:
		return "I couldn't access my memory"
	}
	return "Something went wrong"
}

func (e *Error) Debug() string {
	return fmt.Sprintf("[%d %s recoverable=%t notify=%t] %s",
		e.Code, e.Category(), e.Recoverable, e.RequiresNotification, e.Error())
}

func New(code Code, msg string) *Error {
	return &Error{
		Code:        code,
		Message:     msg,
		Recoverable: defaultRecoverable(code),
	}
}

func Wrap(code Code, msg string, err error) *Error {
	e := New(code, msg)
	e.Err = err
	return e
}

func (e *Error) WithSubject(s string) *Error {
	e.Subject = s
	return e
}

func (e *Error) Notify() *Error {
	e.RequiresNotification = true
	return e
}

func (e *Error) Fatal() *Error {
	e.Recoverable = false
	return e
}

// Audio, wake, STT and system failures are transient; configuration and
// database failures surface immediately.
func defaultRecoverable(c Code) bool {
	switch c {
	case AppNotFound, FileNotFound, FileAccessDenied, PermissionDenied,
		InvalidParameter, Cancelled, AudioDeviceNotFound, AudioUnsupportedFormat,
		WakeModelMissing, STTModelMissing:
		return false
	}
	switch c.Category() {
	case CategoryAudio, CategoryWakeWord, CategorySTT, CategorySystem,
		CategoryApplication, CategoryFile:
		return true
	}
	return false
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	return Unknown
}

// IsRecoverable reports whether a retry may succeed.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := As(err); ok {
		return e.Recoverable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func UserMessage(err error) string {
	if e, ok := As(err); ok {
		return e.UserMessage()
	}
	return "Something went wrong"
}

func AppMissing(name string) *Error {
	return New(AppNotFound, "application not found: "+name).WithSubject(name).Notify()
}

func FileMissing(query string) *Error {
	return New(FileNotFound, "no file matches: "+query).WithSubject(query).Notify()
}

func System(msg string, err error) *Error {
	return Wrap(SystemOperation, msg, err)
}

func Invalid(msg string) *Error {
	return New(InvalidParameter, msg)
}

func Config(msg string, err error) *Error {
	return Wrap(ConfigInvalid, msg, err).Notify()
}

func Database(code Code, msg string, err error) *Error {
	return Wrap(code, msg, err).Notify()
}
