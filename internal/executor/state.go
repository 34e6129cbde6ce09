package executor

import (
	"maps"
	"strings"
	"sync"
)

// ConditionKey is the state key of free-text conditions attached to
// conditional steps.
const ConditionKey = "condition"

// State holds the facts StateCondition preconditions are checked against.
// Conditions form a set; every other key holds a single value.
type State struct {
	mu    sync.RWMutex
	vals  map[string]string
	conds map[string]bool
}

func NewState() *State {
	return &State{vals: map[string]string{}, conds: map[string]bool{}}
}

func normCond(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (s *State) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == ConditionKey {
		s.conds[normCond(value)] = true
		return
	}
	s.vals[key] = value
}

func (s *State) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vals[key]
	return v, ok
}

// Assert marks a condition as holding.
func (s *State) Assert(cond string) { s.Set(ConditionKey, cond) }

func (s *State) Retract(cond string) {
	s.mu.Lock()
	delete(s.conds, normCond(cond))
	s.mu.Unlock()
}

func (s *State) Holds(key, value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key == ConditionKey {
		return s.conds[normCond(value)]
	}
	v, ok := s.vals[key]
	return ok && v == value
}

func (s *State) Snapshot() (values map[string]string, conditions []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values = maps.Clone(s.vals)
	for c := range s.conds {
		conditions = append(conditions, c)
	}
	return values, conditions
}
