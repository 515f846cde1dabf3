package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiviral/api/internal/service"
)

type recordingRunner struct {
	mu      sync.Mutex
	ran     []string
	active  int32
	maxSeen int32
	hold    chan struct{}
	ctxs    []context.Context
}

func (r *recordingRunner) Run(ctx context.Context, jobID string) {
	r.mu.Lock()
	r.ctxs = append(r.ctxs, ctx)
	r.mu.Unlock()

	n := atomic.AddInt32(&r.active, 1)
	for {
		old := atomic.LoadInt32(&r.maxSeen)
		if n <= old || atomic.CompareAndSwapInt32(&r.maxSeen, old, n) {
			break
		}
	}
	if r.hold != nil {
		<-r.hold
	}
	atomic.AddInt32(&r.active, -1)

	r.mu.Lock()
	r.ran = append(r.ran, jobID)
	r.mu.Unlock()
}

func (r *recordingRunner) jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

func TestLocalPool_RunsDispatchedJobs(t *testing.T) {
	runner := &recordingRunner{}
	pool := NewLocalPool(runner, 2)

	require.NoError(t, pool.Dispatch(context.Background(), "a"))
	require.NoError(t, pool.Dispatch(context.Background(), "b"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	assert.ElementsMatch(t, []string{"a", "b"}, runner.jobs())
}

func TestLocalPool_BoundsConcurrency(t *testing.T) {
	runner := &recordingRunner{hold: make(chan struct{})}
	pool := NewLocalPool(runner, 2)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, pool.Dispatch(context.Background(), id))
	}
	time.Sleep(50 * time.Millisecond)
	close(runner.hold)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	assert.Len(t, runner.jobs(), 5)
	assert.LessOrEqual(t, atomic.LoadInt32(&runner.maxSeen), int32(2))
}

func TestLocalPool_RunSurvivesCancelledRequest(t *testing.T) {
	runner := &recordingRunner{}
	pool := NewLocalPool(runner, 1)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	require.NoError(t, pool.Dispatch(reqCtx, "a"))
	cancelReq()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	assert.Equal(t, []string{"a"}, runner.jobs())
}

type requestKey struct{}

func TestLocalPool_RunIsDetachedFromRequest(t *testing.T) {
	runner := &recordingRunner{}
	pool := NewLocalPool(runner, 1)

	reqCtx := context.WithValue(context.Background(), requestKey{}, "req-1")
	require.NoError(t, pool.Dispatch(reqCtx, "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.ctxs, 1)
	assert.Nil(t, runner.ctxs[0].Value(requestKey{}))
	assert.NoError(t, runner.ctxs[0].Err())
}

func TestLocalPool_RejectsAfterShutdown(t *testing.T) {
	pool := NewLocalPool(&recordingRunner{}, 1)
	require.NoError(t, pool.Shutdown(context.Background()))

	err := pool.Dispatch(context.Background(), "late")
	assert.ErrorIs(t, err, ErrPoolClosed)
}

type fakeEnqueuer struct {
	task *asynq.Task
	opts []asynq.Option
	err  error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.task = task
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueuePipeline}, nil
}

func TestAsynqDispatcher_EnqueuesPipelineTask(t *testing.T) {
	fake := &fakeEnqueuer{}
	d := &AsynqDispatcher{client: fake}

	require.NoError(t, d.Dispatch(context.Background(), "job-1"))
	require.NotNil(t, fake.task)
	assert.Equal(t, service.TaskTypePipeline, fake.task.Type())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(fake.task.Payload(), &payload))
	assert.Equal(t, "job-1", payload["jobId"])

	var maxRetry, queue bool
	for _, o := range fake.opts {
		switch o.Type() {
		case asynq.MaxRetryOpt:
			maxRetry = o.Value() == 0
		case asynq.QueueOpt:
			queue = o.Value() == QueuePipeline
		}
	}
	assert.True(t, maxRetry, "pipeline tasks must not be retried")
	assert.True(t, queue)
}

func TestAsynqDispatcher_EnqueueFailure(t *testing.T) {
	d := &AsynqDispatcher{client: &fakeEnqueuer{err: errors.New("redis down")}}

	err := d.Dispatch(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestPipelineWorker_ProcessTask(t *testing.T) {
	runner := &recordingRunner{}
	w := NewPipelineWorker(runner)

	task, err := NewPipelineTask("job-9")
	require.NoError(t, err)
	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, []string{"job-9"}, runner.jobs())
}

func TestPipelineWorker_BadPayloadSkipsRetry(t *testing.T) {
	w := NewPipelineWorker(&recordingRunner{})

	err := w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypePipeline, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypePipeline, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
