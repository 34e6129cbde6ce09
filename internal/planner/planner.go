package planner

import (
	"fmt"
	log "log/slog"
	"strconv"
	"time"

	"luna/internal/intent"
)

// capability names referenced by ResourceAvailable preconditions
const (
	ResourceApps    = "apps"
	ResourceFiles   = "files"
	ResourceSystem  = "system"
	ResourceMedia   = "media"
	ResourceWindows = "windows"
	ResourceNotes   = "notes"
	ResourceAnswers = "answers"
)

var resources = map[ActionType]string{
	LaunchApp:        ResourceApps,
	CloseApp:         ResourceApps,
	SearchWeb:        ResourceApps,
	FindFile:         ResourceFiles,
	OpenFolder:       ResourceFiles,
	SystemControl:    ResourceSystem,
	VolumeControl:    ResourceSystem,
	MediaControl:     ResourceMedia,
	WindowManagement: ResourceWindows,
	TakeNote:         ResourceNotes,
	CreateReminder:   ResourceNotes,
	AnswerQuestion:   ResourceAnswers,
}

// ResourceFor names the capability an action needs, or "" for actions the
// executor answers itself.
func ResourceFor(a ActionType) string { return resources[a] }

type Planner struct {
	// MinConfidence is attached to every step as a ConfidenceThreshold
	// precondition. Zero disables it.
	MinConfidence float32
	now           func() time.Time
}

func New(minConfidence float32) *Planner {
	return &Planner{MinConfidence: minConfidence, now: time.Now}
}

func (p *Planner) step(c intent.Classification) (ActionStep, error) {
	cmd := c.Command
	a, ok := ActionFor(cmd.Intent)
	if !ok {
		return ActionStep{}, fmt.Errorf("no action for intent %s", cmd.Intent)
	}

	s := ActionStep{
		Action:     a,
		Params:     cmd.Entities.StringMap(),
		Confidence: c.Confidence.Score,
	}
	if r, ok := resources[a]; ok {
		s.Preconditions = append(s.Preconditions, Resource(r))
	}
	if p.MinConfidence > 0 {
		s.Preconditions = append(s.Preconditions, MinConfidence(p.MinConfidence))
	}
	s.Postconditions = postconditions(a, s.Params)
	return s, nil
}

func postconditions(a ActionType, params map[string]string) []Postcondition {
	switch a {
	case LaunchApp:
		return []Postcondition{{Kind: StateChanged, Key: "app_running", Value: params["app_name"]}}
	case CloseApp:
		return []Postcondition{{Kind: StateChanged, Key: "app_closed", Value: params["app_name"]}}
	case VolumeControl:
		if lvl, ok := params["level"]; ok {
			return []Postcondition{{Kind: StateChanged, Key: "volume", Value: lvl}}
		}
	case TakeNote:
		return []Postcondition{{Kind: ResourceModified, Resource: "notes"}}
	case CreateReminder:
		return []Postcondition{{Kind: ResourceModified, Resource: "reminders"}}
	}
	return []Postcondition{{Kind: Success}}
}

func waitStep(d time.Duration) ActionStep {
	return ActionStep{
		Action:         Wait,
		Params:         map[string]string{"duration": strconv.Itoa(int(d.Round(time.Second) / time.Second))},
		Confidence:     1,
		Postconditions: []Postcondition{{Kind: Success}},
	}
}

func waitSeconds(s ActionStep) (int, error) {
	n, err := strconv.Atoi(s.Params["duration"])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("wait step %d has invalid duration %q", s.StepNumber, s.Params["duration"])
	}
	return n, nil
}

func (p *Planner) finish(plan TaskPlan) TaskPlan {
	for i := range plan.Steps {
		plan.Steps[i].StepNumber = i
	}
	Validate(&plan)
	log.Debug("Plan built", "steps", len(plan.Steps), "coordination", plan.Coordination, "valid", plan.Valid)
	return plan
}

// Plan builds a one-step plan for a single classified command.
func (p *Planner) Plan(c intent.Classification) TaskPlan {
	plan := TaskPlan{Classification: c, Coordination: intent.Single}
	s, err := p.step(c)
	if err != nil {
		plan.ValidationErrors = append(plan.ValidationErrors, err.Error())
		return plan
	}
	plan.Steps = []ActionStep{s}
	return p.finish(plan)
}

// PlanMulti builds a plan for a possibly compound utterance. Sequential
// segments chain, parallel segments share one group, a schedulable
// temporal modifier prepends a Wait and a condition gates the action.
func (p *Planner) PlanMulti(mi intent.MultiIntent) TaskPlan {
	if len(mi.Segments) == 0 {
		return TaskPlan{ValidationErrors: []string{"nothing to plan"}}
	}
	if mi.Coordination == intent.Single && len(mi.Segments) == 1 {
		return p.Plan(mi.Segments[0].Result)
	}

	plan := TaskPlan{Classification: weakest(mi.Segments), Coordination: mi.Coordination}
	var steps []ActionStep
	for _, seg := range mi.Segments {
		s, err := p.step(seg.Result)
		if err != nil {
			plan.ValidationErrors = append(plan.ValidationErrors, fmt.Sprintf("segment %q: %v", seg.Text, err))
			return plan
		}
		steps = append(steps, s)
	}

	switch mi.Coordination {
	case intent.Sequential:
		for i := range steps {
			if i > 0 {
				steps[i].Preconditions = append(steps[i].Preconditions, AfterStep(i-1))
				plan.Dependencies = append(plan.Dependencies, Dependency{From: i - 1, To: i})
			}
		}
		plan.Steps = steps

	case intent.Parallel:
		group := make([]int, len(steps))
		for i := range steps {
			steps[i].ParallelGroup = 1
			group[i] = i
		}
		plan.ParallelGroups = [][]int{group}
		plan.Steps = steps

	case intent.Temporal:
		mod := mi.Segments[0].Temporal
		if mod == nil {
			plan.Steps = steps
			break
		}
		if !mod.Relation.Schedulable() {
			plan.ValidationErrors = append(plan.ValidationErrors,
				fmt.Sprintf("temporal relation %q is not scheduled; running immediately", mod.Relation))
			plan.Steps = steps
			break
		}
		d := mod.Delay(p.now())
		action := steps[0]
		action.Preconditions = append(action.Preconditions, AfterStep(0))
		plan.Steps = []ActionStep{waitStep(d), action}
		plan.Dependencies = []Dependency{{From: 0, To: 1}}

	case intent.Conditional:
		for i, seg := range mi.Segments {
			if seg.Condition != "" {
				steps[i].Preconditions = append(steps[i].Preconditions, State("condition", seg.Condition))
			}
		}
		plan.Steps = steps

	default:
		plan.Steps = steps
	}
	return p.finish(plan)
}

// weakest returns the least confident segment classification.
func weakest(segs []intent.Segment) intent.Classification {
	w := segs[0].Result
	for _, s := range segs[1:] {
		if s.Result.Confidence.Score < w.Confidence.Score {
			w = s.Result
		}
	}
	return w
}
