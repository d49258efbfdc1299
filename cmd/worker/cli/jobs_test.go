package cli

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/jobs"
)

func TestTriggerEnqueuesMaintenanceJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewJobsCLI(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	info, err := c.Trigger(ctx, jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, info.Type)

	info, err = c.Trigger(ctx, jobs.TaskPendingDigest)
	require.NoError(t, err)
	require.Equal(t, jobs.QueueDefault, info.Queue)

	_, err = c.Trigger(ctx, "mail:send")
	require.Error(t, err)

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 2)
}
