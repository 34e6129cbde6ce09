package planner

import (
	"fmt"
	"slices"
)

// Validate checks the structural invariants of plan and records findings
// in ValidationErrors. Unmet confidence thresholds are noted without
// invalidating the plan.
func Validate(plan *TaskPlan) {
	plan.Valid = true
	fatal := func(format string, args ...any) {
		plan.Valid = false
		plan.ValidationErrors = append(plan.ValidationErrors, fmt.Sprintf(format, args...))
	}

	n := len(plan.Steps)
	if n == 0 {
		fatal("plan has no steps")
		return
	}

	edges := make([][]int, n)
	for _, d := range plan.Dependencies {
		if d.From < 0 || d.From >= n || d.To < 0 || d.To >= n {
			fatal("dependency %d -> %d out of range", d.From, d.To)
			continue
		}
		if d.From == d.To {
			fatal("step %d depends on itself", d.From)
			continue
		}
		edges[d.From] = append(edges[d.From], d.To)
	}

	for i, s := range plan.Steps {
		for _, pre := range s.Preconditions {
			switch pre.Kind {
			case StepCompleted:
				switch {
				case pre.Step < 0 || pre.Step >= n:
					fatal("step %d: StepCompleted(%d) out of range", i, pre.Step)
				case pre.Step == i:
					fatal("step %d waits for itself", i)
				default:
					if !slices.Contains(edges[pre.Step], i) {
						edges[pre.Step] = append(edges[pre.Step], i)
					}
				}
			case ConfidenceThreshold:
				if s.Confidence < pre.Threshold {
					plan.ValidationErrors = append(plan.ValidationErrors,
						fmt.Sprintf("step %d: confidence %.2f below threshold %.2f", i, s.Confidence, pre.Threshold))
				}
			}
		}
		if s.Action == Wait {
			if _, err := waitSeconds(s); err != nil {
				fatal("%v", err)
			}
		}
	}

	if c, ok := findCycle(edges); ok {
		fatal("circular dependency involving step %d", c)
	}

	for g, members := range plan.ParallelGroups {
		for _, m := range members {
			if m < 0 || m >= n {
				fatal("parallel group %d lists step %d out of range", g+1, m)
			} else if plan.Steps[m].ParallelGroup != g+1 {
				fatal("parallel group %d lists step %d assigned to group %d", g+1, m, plan.Steps[m].ParallelGroup)
			}
		}
	}
	for i, s := range plan.Steps {
		g := s.ParallelGroup
		if g == NoGroup {
			continue
		}
		if g < 0 || g > len(plan.ParallelGroups) {
			fatal("step %d references undeclared parallel group %d", i, g)
			continue
		}
		if !slices.Contains(plan.ParallelGroups[g-1], i) {
			fatal("step %d missing from its parallel group %d", i, g)
		}
	}
	for g, members := range plan.ParallelGroups {
		for _, a := range members {
			for _, b := range members {
				if a != b && validIndex(a, n) && validIndex(b, n) && reaches(edges, a, b) {
					fatal("parallel group %d: step %d depends on step %d", g+1, b, a)
				}
			}
		}
	}
}

func validIndex(i, n int) bool { return i >= 0 && i < n }

// findCycle runs a DFS with a recursion stack and returns a step on a
// cycle.
func findCycle(edges [][]int) (int, bool) {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(edges))
	var visit func(int) (int, bool)
	visit = func(u int) (int, bool) {
		color[u] = grey
		for _, v := range edges[u] {
			switch color[v] {
			case grey:
				return v, true
			case white:
				if c, ok := visit(v); ok {
					return c, true
				}
			}
		}
		color[u] = black
		return 0, false
	}
	for u := range edges {
		if color[u] == white {
			if c, ok := visit(u); ok {
				return c, true
			}
		}
	}
	return 0, false
}

func reaches(edges [][]int, from, to int) bool {
	seen := make([]bool, len(edges))
	stack := []int{from}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, v := range edges[u] {
			if v == to {
				return true
			}
			if !seen[v] {
				seen[v] = true
				stack = append(stack, v)
			}
		}
	}
	return false
}
