package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronScheduler_RegisterAndUnregister(t *testing.T) {
	env := newTestEnv(t)
	cs := NewCronScheduler(env.engine)

	require.NoError(t, cs.RegisterWorkflow("wf-1", "tenant-1", "0 0 * * * *", nil))
	assert.Equal(t, []string{"wf-1"}, cs.RegisteredWorkflows())

	// 重复注册
	assert.Error(t, cs.RegisterWorkflow("wf-1", "tenant-1", "0 0 * * * *", nil))

	require.NoError(t, cs.UnregisterWorkflow("wf-1"))
	assert.Empty(t, cs.RegisteredWorkflows())

	// 未注册的取消
	assert.Error(t, cs.UnregisterWorkflow("wf-1"))
}

func TestCronScheduler_InvalidExpression(t *testing.T) {
	env := newTestEnv(t)
	cs := NewCronScheduler(env.engine)

	assert.Error(t, cs.RegisterWorkflow("wf-1", "tenant-1", "not a cron expr", nil))
	assert.Error(t, cs.RegisterWorkflow("wf-2", "tenant-1", "", nil))
}
