// Package planner turns classified commands into executable task plans.
package planner

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"luna/internal/intent"
)

type ActionType int

const (
	LaunchApp ActionType = iota
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
	Wait
)

var actionNames = [...]string{
	LaunchApp:        "LaunchApp",
	CloseApp:         "CloseApp",
	FindFile:         "FindFile",
	OpenFolder:       "OpenFolder",
	SystemControl:    "SystemControl",
	VolumeControl:    "VolumeControl",
	WindowManagement: "WindowManagement",
	MediaControl:     "MediaControl",
	SearchWeb:        "SearchWeb",
	CreateReminder:   "CreateReminder",
	TakeNote:         "TakeNote",
	AnswerQuestion:   "AnswerQuestion",
	GetTime:          "GetTime",
	GetDate:          "GetDate",
	Wait:             "Wait",
}

func (a ActionType) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("ActionType(%d)", int(a))
	}
	return actionNames[a]
}

func ParseActionType(s string) (ActionType, bool) {
	for i, n := range actionNames {
		if strings.EqualFold(n, s) {
			return ActionType(i), true
		}
	}
	return 0, false
}

func (a ActionType) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

var byIntent = map[intent.Type]ActionType{
	intent.LaunchApp:        LaunchApp,
	intent.CloseApp:         CloseApp,
	intent.FindFile:         FindFile,
	intent.OpenFolder:       OpenFolder,
	intent.SystemControl:    SystemControl,
	intent.VolumeControl:    VolumeControl,
	intent.WindowManagement: WindowManagement,
	intent.MediaControl:     MediaControl,
	intent.SearchWeb:        SearchWeb,
	intent.CreateReminder:   CreateReminder,
	intent.TakeNote:         TakeNote,
	intent.AnswerQuestion:   AnswerQuestion,
	intent.GetTime:          GetTime,
	intent.GetDate:          GetDate,
}

// ActionFor maps an intent onto the action that carries it out.
func ActionFor(t intent.Type) (ActionType, bool) {
	a, ok := byIntent[t]
	return a, ok
}

type PreconditionKind int

const (
	StepCompleted PreconditionKind = iota
	StateCondition
	ResourceAvailable
	ConfidenceThreshold
)

type Precondition struct {
	Kind      PreconditionKind
	Step      int     // StepCompleted
	Key       string  // StateCondition
	Value     string  // StateCondition
	Resource  string  // ResourceAvailable
	Threshold float32 // ConfidenceThreshold
}

func AfterStep(i int) Precondition { return Precondition{Kind: StepCompleted, Step: i} }

func State(key, value string) Precondition {
	return Precondition{Kind: StateCondition, Key: key, Value: value}
}

func Resource(r string) Precondition { return Precondition{Kind: ResourceAvailable, Resource: r} }

func MinConfidence(t float32) Precondition {
	return Precondition{Kind: ConfidenceThreshold, Threshold: t}
}

func (p Precondition) String() string {
	switch p.Kind {
	case StepCompleted:
		return fmt.Sprintf("StepCompleted(%d)", p.Step)
	case StateCondition:
		return fmt.Sprintf("StateCondition(%s=%q)", p.Key, p.Value)
	case ResourceAvailable:
		return fmt.Sprintf("ResourceAvailable(%s)", p.Resource)
	case ConfidenceThreshold:
		return fmt.Sprintf("ConfidenceThreshold(%.2f)", p.Threshold)
	}
	return "Precondition(?)"
}

type PostconditionKind int

const (
	Success PostconditionKind = iota
	StateChanged
	ResourceModified
)

type Postcondition struct {
	Kind     PostconditionKind
	Key      string
	Value    string
	Resource string
}

func (p Postcondition) String() string {
	switch p.Kind {
	case StateChanged:
		return fmt.Sprintf("StateChanged(%s=%q)", p.Key, p.Value)
	case ResourceModified:
		return fmt.Sprintf("ResourceModified(%s)", p.Resource)
	}
	return "Success"
}

// NoGroup marks a step outside any parallel group. Groups are numbered from
// 1 and group g lists its members in ParallelGroups[g-1].
const NoGroup = 0

type ActionStep struct {
	Action         ActionType
	Params         map[string]string
	StepNumber     int
	Preconditions  []Precondition
	Postconditions []Postcondition
	ParallelGroup  int
	// Confidence is the score of the classification the step came from.
	Confidence float32
}

// Describe renders the action and its parameters in key order.
func (s ActionStep) Describe() string {
	var b strings.Builder
	b.WriteString(s.Action.String())
	for _, k := range slices.Sorted(maps.Keys(s.Params)) {
		fmt.Fprintf(&b, " %s=%s", k, s.Params[k])
	}
	return b.String()
}

func (s ActionStep) Clone() ActionStep {
	s.Params = maps.Clone(s.Params)
	s.Preconditions = slices.Clone(s.Preconditions)
	s.Postconditions = slices.Clone(s.Postconditions)
	return s
}

// Dependency orders To after From.
type Dependency struct {
	From, To int
}

type TaskPlan struct {
	Steps          []ActionStep
	Dependencies   []Dependency
	Classification intent.Classification
	Coordination   intent.Coordination
	ParallelGroups [][]int
	Valid          bool
	// ValidationErrors holds fatal findings and non-fatal notes alike;
	// only fatal ones clear Valid.
	ValidationErrors []string
}

func (p TaskPlan) Clone() TaskPlan {
	steps := make([]ActionStep, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = s.Clone()
	}
	p.Steps = steps
	p.Dependencies = slices.Clone(p.Dependencies)
	p.Classification = p.Classification.Clone()
	groups := make([][]int, len(p.ParallelGroups))
	for i, g := range p.ParallelGroups {
		groups[i] = slices.Clone(g)
	}
	p.ParallelGroups = groups
	p.ValidationErrors = slices.Clone(p.ValidationErrors)
	return p
}

// Stages returns the execution order: steps in index order, with a
// parallel group running as one stage at the position of its first member.
func (p TaskPlan) Stages() [][]int {
	var out [][]int
	done := map[int]bool{}
	for i, s := range p.Steps {
		g := s.ParallelGroup
		if g == NoGroup || g > len(p.ParallelGroups) {
			out = append(out, []int{i})
			continue
		}
		if done[g] {
			continue
		}
		done[g] = true
		out = append(out, slices.Clone(p.ParallelGroups[g-1]))
	}
	return out
}

// WaitTotal sums the scheduled durations of Wait steps, in seconds.
func (p TaskPlan) WaitTotal() int {
	total := 0
	for _, s := range p.Steps {
		if s.Action != Wait {
			continue
		}
		if n, err := waitSeconds(s); err == nil {
			total += n
		}
	}
	return total
}
