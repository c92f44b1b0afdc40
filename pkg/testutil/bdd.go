package testutil

import "testing"

// Scenario runs Given/When/Then steps as sibling subtests of t, in the order
// they were added. Once a step fails the remaining steps are skipped, so later
// steps may rely on state captured by earlier ones.
type Scenario struct {
	t     *testing.T
	steps []scenarioStep
}

type scenarioStep struct {
	name string
	fn   func(t *testing.T)
}

func NewScenario(t *testing.T) *Scenario {
	return &Scenario{t: t}
}

func (s *Scenario) Given(desc string, fn func(t *testing.T)) *Scenario {
	return s.add("Given "+desc, fn)
}

func (s *Scenario) When(desc string, fn func(t *testing.T)) *Scenario {
	return s.add("When "+desc, fn)
}

func (s *Scenario) Then(desc string, fn func(t *testing.T)) *Scenario {
	return s.add("Then "+desc, fn)
}

func (s *Scenario) And(desc string, fn func(t *testing.T)) *Scenario {
	return s.add("And "+desc, fn)
}

func (s *Scenario) add(name string, fn func(t *testing.T)) *Scenario {
	s.steps = append(s.steps, scenarioStep{name: name, fn: fn})
	return s
}

// Run executes the steps and reports whether all of them passed.
func (s *Scenario) Run() bool {
	s.t.Helper()
	for i, step := range s.steps {
		if !s.t.Run(step.name, step.fn) {
			for _, skipped := range s.steps[i+1:] {
				s.t.Logf("skipped %q after failed step %q", skipped.name, step.name)
			}
			return false
		}
	}
	return true
}
