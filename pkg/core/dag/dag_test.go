package dag

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/flow-engine/pkg/core/workflow"
)

func diamondWorkflow() *workflow.Workflow {
	wf := workflow.NewWorkflow("tenant-1", "菱形依赖", "")
	wf.AddStep(&workflow.Step{ID: "A", Type: "transform"})
	wf.AddStep(&workflow.Step{ID: "B", Type: "transform", DependsOn: []string{"A"}})
	wf.AddStep(&workflow.Step{ID: "C", Type: "transform", DependsOn: []string{"A"}})
	wf.AddStep(&workflow.Step{ID: "D", Type: "transform", DependsOn: []string{"B", "C"}})
	return wf
}

func TestBuild_Roots(t *testing.T) {
	g, err := Build(diamondWorkflow())
	require.NoError(t, err)

	assert.Equal(t, 4, g.Size())
	assert.Equal(t, []string{"A"}, g.Roots())
}

func TestGraph_Children(t *testing.T) {
	g, err := Build(diamondWorkflow())
	require.NoError(t, err)

	children, err := g.Children("A")
	require.NoError(t, err)
	sort.Strings(children)
	assert.Equal(t, []string{"B", "C"}, children)
}

func TestGraph_DependenciesSatisfied(t *testing.T) {
	g, err := Build(diamondWorkflow())
	require.NoError(t, err)

	completed := map[string]bool{"A": true, "B": true}

	ok, err := g.DependenciesSatisfied("B", completed)
	require.NoError(t, err)
	assert.True(t, ok)

	// D 依赖 B 和 C，C 未完成
	ok, err = g.DependenciesSatisfied("D", completed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGraph_ReadyAfter(t *testing.T) {
	g, err := Build(diamondWorkflow())
	require.NoError(t, err)

	// A完成后，B和C就绪
	ready, err := g.ReadyAfter("A", map[string]bool{"A": true})
	require.NoError(t, err)
	sort.Strings(ready)
	assert.Equal(t, []string{"B", "C"}, ready)

	// B完成但C未完成时，D不就绪
	ready, err = g.ReadyAfter("B", map[string]bool{"A": true, "B": true})
	require.NoError(t, err)
	assert.Empty(t, ready)

	// B、C都完成后，D就绪
	ready, err = g.ReadyAfter("C", map[string]bool{"A": true, "B": true, "C": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, ready)
}
