package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflowSrc = `
node "emit" "source" {
  config {
    values = [110, 120, 130, 90, 80]
  }
}

node "adjust" "adjuster" {
  config {
    factor = 0.9
  }
}

node "evaluate" "evaluator" {}

connection "source" "adjuster" {
  fields = { values = "values" }
}

connection "adjuster" "evaluator" {
  fields = { values = "values" }
}

connection "evaluator" "adjuster" {
  fields = { values = "values", needs_adjustment = "needs_adjustment" }

  cycle {
    id                = "refine"
    max_iterations    = 5
    timeout           = "30s"
    convergence_check = "average <= 100"
  }
}
`

func TestParseBytesWorkflow(t *testing.T) {
	loader := NewLoader()
	model, err := loader.ParseBytes(context.Background(), []byte(workflowSrc), "workflow.hcl")
	require.NoError(t, err)

	require.Len(t, model.Nodes, 3)
	require.Len(t, model.Connections, 3)

	source := model.Nodes[0]
	assert.Equal(t, "emit", source.Type)
	assert.Equal(t, "source", source.Name)
	values := source.Config["values"]
	require.True(t, values.CanIterateElements())
	assert.Equal(t, 5, values.LengthInt())

	adjuster := model.Nodes[1]
	factor, _ := adjuster.Config["factor"].AsBigFloat().Float64()
	assert.InDelta(t, 0.9, factor, 1e-9)

	evaluator := model.Nodes[2]
	assert.Empty(t, evaluator.Config)

	feedback := model.Connections[2]
	assert.Equal(t, "evaluator", feedback.Source)
	assert.Equal(t, "adjuster", feedback.Target)
	assert.Equal(t, map[string]string{"values": "values", "needs_adjustment": "needs_adjustment"}, feedback.Fields)

	require.True(t, feedback.IsMarked())
	assert.Equal(t, "refine", feedback.Cycle.ID)
	assert.Equal(t, 5, feedback.Cycle.MaxIterations)
	assert.Equal(t, 30*time.Second, feedback.Cycle.Timeout)
	assert.Equal(t, "average <= 100", feedback.Cycle.ConvergenceCheck)
	assert.True(t, feedback.Cycle.HasSafetyLimit())

	assert.False(t, model.Connections[0].IsMarked())
}

func TestParseBytesRejectsBadSyntax(t *testing.T) {
	_, err := NewLoader().ParseBytes(context.Background(), []byte(`node "a" {`), "bad.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.hcl")
}

func TestParseBytesRejectsDynamicConfig(t *testing.T) {
	src := `
node "emit" "source" {
  config {
    values = some_reference.elsewhere
  }
}
`
	_, err := NewLoader().ParseBytes(context.Background(), []byte(src), "dynamic.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "static value")
}

func TestParseBytesRejectsInvalidTimeout(t *testing.T) {
	src := `
node "emit" "a" {}
node "emit" "b" {}

connection "a" "b" {
  cycle {
    timeout = "not-a-duration"
  }
}
`
	_, err := NewLoader().ParseBytes(context.Background(), []byte(src), "timeout.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cycle timeout")
}

func TestParseBytesRejectsDuplicateNames(t *testing.T) {
	src := `
node "emit" "same" {}
node "adjust" "same" {}
`
	_, err := NewLoader().ParseBytes(context.Background(), []byte(src), "dup.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate node instance name "same"`)
}

func TestLoadMergesFilesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`node "emit" "first" {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"), []byte(`node "emit" "second" {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte(`not hcl`), 0o644))

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, model.Nodes, 2)
	assert.Equal(t, "first", model.Nodes[0].Name)
	assert.Equal(t, "second", model.Nodes[1].Name)
}

func TestLoadFailsWhenNoFilesFound(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .hcl workflow files")
}
