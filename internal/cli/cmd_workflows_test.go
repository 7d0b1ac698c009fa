package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/flowd/internal/workflow"
)

func TestWorkflowExportRoundTrip(t *testing.T) {
	state := workflow.NewState()
	state.Blocks["start"] = &workflow.Block{ID: "start", Type: workflow.BlockTypeStarter, Name: "Start", Enabled: true}
	state.Blocks["fn"] = &workflow.Block{ID: "fn", Type: workflow.BlockTypeFunction, Name: "Transform", Enabled: true}
	state.Edges = []workflow.Edge{{ID: "e1", Source: "start", Target: "fn"}}

	raw, err := json.Marshal(state)
	require.NoError(t, err)

	doc := workflowExport{
		Name:        "Nightly sync",
		Description: "Pulls upstream records",
		Color:       "#3972F6",
		StateJSON:   string(raw),
	}
	out, err := yaml.Marshal(doc)
	require.NoError(t, err)

	var parsed workflowExport
	require.NoError(t, yaml.Unmarshal(out, &parsed))
	require.Equal(t, doc.Name, parsed.Name)
	require.Equal(t, doc.Color, parsed.Color)

	var restored workflow.State
	require.NoError(t, json.Unmarshal([]byte(parsed.StateJSON), &restored))
	workflow.Normalize(&restored)
	require.NoError(t, workflow.Validate(&restored))
	require.Len(t, restored.Blocks, 2)
	require.Len(t, restored.Edges, 1)
}

func TestWorkflowImportRejectsBrokenState(t *testing.T) {
	// A graph with no starter block must not import.
	state := workflow.NewState()
	state.Blocks["fn"] = &workflow.Block{ID: "fn", Type: workflow.BlockTypeFunction, Name: "Transform", Enabled: true}

	workflow.Normalize(state)
	require.Error(t, workflow.Validate(state))
}
