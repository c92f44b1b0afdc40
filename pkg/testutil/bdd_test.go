package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScenarioRunsStepsInOrder(t *testing.T) {
	var order []string
	passed := NewScenario(t).
		Given("a", func(*testing.T) { order = append(order, "given") }).
		When("b", func(*testing.T) { order = append(order, "when") }).
		Then("c", func(*testing.T) { order = append(order, "then") }).
		And("d", func(*testing.T) { order = append(order, "and") }).
		Run()

	assert.True(t, passed)
	assert.Equal(t, []string{"given", "when", "then", "and"}, order)
}

func TestScenarioContinuesAfterSkippedStep(t *testing.T) {
	var ran []string
	passed := NewScenario(t).
		Given("a precondition that cannot hold", func(t *testing.T) {
			ran = append(ran, "given")
			t.SkipNow()
		}).
		Then("still runs", func(*testing.T) { ran = append(ran, "then") }).
		Run()

	assert.True(t, passed, "a skipped step is not a failure")
	assert.Equal(t, []string{"given", "then"}, ran)
}
