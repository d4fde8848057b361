package updater

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quote-sentinel/internal/core/memory"
	"quote-sentinel/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// conflictingRepo bumps the stored row before the first n saves go through,
// as a writer in another process would.
type conflictingRepo struct {
	*memory.Store
	conflicts int
}

func (r *conflictingRepo) Save(ctx context.Context, execution *domain.WorkflowExecution) error {
	if r.conflicts > 0 {
		r.conflicts--
		other, err := r.Store.GetByID(ctx, execution.WorkflowID)
		if err != nil {
			return err
		}
		other.SuppliersContacted++
		if err := r.Store.Save(ctx, other); err != nil {
			return err
		}
	}
	return r.Store.Save(ctx, execution)
}

func seed(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(),
		domain.NewWorkflowExecution(id, domain.WorkflowQuoteAutomation, domain.CorrelatedIDs{}, time.Now())))
}

func TestUpdate_Saves(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "wf-1")
	u := New(store, 3)

	updated, err := u.Update(context.Background(), "wf-1", func(e *domain.WorkflowExecution) error {
		e.Status = domain.WorkflowDetecting
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	stored, err := store.GetByID(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowDetecting, stored.Status)
}

func TestUpdate_RetriesOnConflict(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "wf-1")
	repo := &conflictingRepo{Store: store, conflicts: 2}
	u := New(repo, 3)

	var calls int
	_, err := u.Update(context.Background(), "wf-1", func(e *domain.WorkflowExecution) error {
		calls++
		e.FailureCount++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	stored, _ := store.GetByID(context.Background(), "wf-1")
	assert.Equal(t, 1, stored.FailureCount)
	assert.Equal(t, 2, stored.SuppliersContacted)
}

func TestUpdate_GivesUpAfterMaxAttempts(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "wf-1")
	u := New(&conflictingRepo{Store: store, conflicts: 5}, 2)

	_, err := u.Update(context.Background(), "wf-1", func(e *domain.WorkflowExecution) error { return nil })

	assert.True(t, domain.IsVersionConflict(err))
	var wfErr *domain.WorkflowError
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, "wf-1", wfErr.WorkflowID)
}

func TestUpdate_NoChangeSkipsSave(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "wf-1")
	u := New(store, 3)

	execution, err := u.Update(context.Background(), "wf-1", func(e *domain.WorkflowExecution) error {
		return ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, 1, execution.Version)
}

func TestUpdate_NotFound(t *testing.T) {
	u := New(memory.NewStore(), 3)

	_, err := u.Update(context.Background(), "missing", func(e *domain.WorkflowExecution) error { return nil })
	assert.True(t, domain.IsWorkflowNotFound(err))
}

func TestUpdate_SerializesWriters(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "wf-1")
	u := New(store, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := u.Update(context.Background(), "wf-1", func(e *domain.WorkflowExecution) error {
				e.SuppliersResponded++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, _ := store.GetByID(context.Background(), "wf-1")
	assert.Equal(t, 20, stored.SuppliersResponded)
	assert.Empty(t, u.locks)
}
