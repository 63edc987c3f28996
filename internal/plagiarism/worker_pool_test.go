package plagiarism

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countJob struct {
	n    *atomic.Int32
	done chan struct{}
}

func (j countJob) Execute(context.Context) error {
	j.n.Add(1)
	j.done <- struct{}{}
	return nil
}

func TestWorkerPoolRunsJobs(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 3)
	defer pool.Close()
	assert.Equal(t, 3, pool.Size())

	var n atomic.Int32
	done := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(context.Background(), countJob{n: &n, done: done}))
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("job did not run")
		}
	}
	assert.Equal(t, int32(10), n.Load())
}

func TestWorkerPoolDefaultSize(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 0)
	defer pool.Close()
	assert.GreaterOrEqual(t, pool.Size(), 1)
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1)
	pool.Close()

	err := pool.Submit(context.Background(), countJob{})
	assert.ErrorIs(t, err, ErrPoolClosed)

	select {
	case <-pool.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}
