package updater

import (
	"context"
	"errors"
	"sync"

	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/domain"
)

// ErrNoChange aborts an update without writing. Update returns the row as
// read and a nil error.
var ErrNoChange = errors.New("no change")

const defaultMaxAttempts = 3

// Updater serializes read-modify-write cycles on workflow rows. Writers in
// this process take a per-workflow lock; writers elsewhere are caught by the
// repository's version check and the cycle is retried.
type Updater struct {
	repo        ports.WorkflowRepository
	maxAttempts int

	mu    sync.Mutex
	locks map[string]*rowLock
}

type rowLock struct {
	mu   sync.Mutex
	refs int
}

func New(repo ports.WorkflowRepository, maxAttempts int) *Updater {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	return &Updater{
		repo:        repo,
		maxAttempts: maxAttempts,
		locks:       make(map[string]*rowLock),
	}
}

// Update loads the workflow, applies fn and saves it. fn may run more than
// once when the row changes underneath it, so it must only touch execution.
func (u *Updater) Update(ctx context.Context, workflowID string, fn func(execution *domain.WorkflowExecution) error) (*domain.WorkflowExecution, error) {
	unlock := u.lock(workflowID)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < u.maxAttempts; attempt++ {
		execution, err := u.repo.GetByID(ctx, workflowID)
		if err != nil {
			return nil, err
		}

		if err := fn(execution); err != nil {
			if errors.Is(err, ErrNoChange) {
				return execution, nil
			}
			return execution, err
		}

		err = u.repo.Save(ctx, execution)
		if err == nil {
			return execution, nil
		}
		if !domain.IsVersionConflict(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, domain.NewWorkflowError("update", workflowID, lastErr)
}

// Do runs fn while holding the workflow's lock, for writers that create rows.
func (u *Updater) Do(workflowID string, fn func() error) error {
	unlock := u.lock(workflowID)
	defer unlock()
	return fn()
}

func (u *Updater) lock(workflowID string) func() {
	u.mu.Lock()
	l, ok := u.locks[workflowID]
	if !ok {
		l = &rowLock{}
		u.locks[workflowID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, workflowID)
		}
		u.mu.Unlock()
	}
}
