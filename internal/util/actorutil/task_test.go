package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type taskResult struct {
	value string
	err   error
}

type taskRunner struct {
	fn      func() (*taskResult, error)
	timeout time.Duration
	results chan taskResult
	busy    chan struct{}
}

type runTask struct{}

type ping struct{}

func (r *taskRunner) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case runTask:
		NewBackgroundTask(ctx, r.fn).Recover(func(err error) taskResult {
			return taskResult{err: err}
		}).WithTimeout(r.timeout).PipeTo(ctx.Self())
	case ping:
		r.busy <- struct{}{}
	case taskResult:
		r.results <- msg
	}
}

func spawnRunner(t *testing.T, fn func() (*taskResult, error), timeout time.Duration) (*actor.ActorSystem, *actor.PID, *taskRunner) {
	as := NewActorSystemWithZapLogger(zap.NewNop())
	runner := &taskRunner{fn: fn, timeout: timeout, results: make(chan taskResult, 1), busy: make(chan struct{}, 1)}
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return runner }))
	t.Cleanup(as.Shutdown)
	return as, pid, runner
}

func TestBackgroundTaskPipesResult(t *testing.T) {

	as, pid, runner := spawnRunner(t, func() (*taskResult, error) {
		return &taskResult{value: "done"}, nil
	}, time.Second)

	as.Root.Send(pid, runTask{})

	select {
	case res := <-runner.results:
		assert.Equal(t, "done", res.value)
		assert.NoError(t, res.err)
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
}

func TestBackgroundTaskRecoversError(t *testing.T) {

	boom := errors.New("boom")
	as, pid, runner := spawnRunner(t, func() (*taskResult, error) {
		return nil, boom
	}, time.Second)

	as.Root.Send(pid, runTask{})

	res := <-runner.results
	assert.ErrorIs(t, res.err, boom)
}

func TestBackgroundTaskTimeoutDoesNotBlockActor(t *testing.T) {

	require := require.New(t)

	as, pid, runner := spawnRunner(t, func() (*taskResult, error) {
		time.Sleep(2 * time.Second)
		return &taskResult{value: "late"}, nil
	}, 200*time.Millisecond)

	as.Root.Send(pid, runTask{})
	as.Root.Send(pid, ping{})

	select {
	case <-runner.busy:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("actor blocked by background task")
	}

	select {
	case res := <-runner.results:
		require.Error(res.err)
		require.Empty(res.value)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout not reported")
	}
}
