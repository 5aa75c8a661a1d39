package deploy

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// scenario fixtures drive deploy/revert sequences against a fresh target and
// check the registry state after every step.
type scenarioFile struct {
	Scenarios []scenario `yaml:"scenarios"`
}

type scenario struct {
	Name  string `yaml:"name"`
	Steps []struct {
		Op     string   `yaml:"op"` // "deploy" or "revert"
		To     string   `yaml:"to"`
		State  string   `yaml:"state"`
		Expect []string `yaml:"expect"`
	} `yaml:"steps"`
}

func TestScenarios(t *testing.T) {
	body, err := os.ReadFile("testdata/scenarios.yaml")
	require.NoError(t, err)
	var file scenarioFile
	require.NoError(t, yaml.Unmarshal(body, &file))
	require.NotEmpty(t, file.Scenarios)

	for _, sc := range file.Scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			e := newEnv(t, fliprPlan, fliprScripts())
			ctx := context.Background()
			for i, step := range sc.Steps {
				var err error
				switch step.Op {
				case "deploy":
					err = e.orch.Deploy(ctx, step.To)
				case "revert":
					err = e.orch.Revert(ctx, step.To)
				default:
					t.Fatalf("step %d: unknown op %q", i, step.Op)
				}
				require.NoError(t, err, "step %d: %s to %q", i, step.Op, step.To)
				if step.State != "" {
					assert.Equal(t, State(step.State), e.orch.State(), "step %d", i)
				}
				deployed := e.deployedNames()
				if len(step.Expect) == 0 {
					assert.Empty(t, deployed, "step %d", i)
				} else {
					assert.Equal(t, step.Expect, deployed, "step %d", i)
				}
			}
		})
	}
}
