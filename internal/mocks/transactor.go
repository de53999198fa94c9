package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/scry-assess/internal/store"
)

// Transactor runs fn directly with a nil transaction. The fake stores return
// themselves from WithTx(nil).
type Transactor struct {
	mu    sync.Mutex
	Calls int
	// Err, when set, is returned instead of running fn.
	Err error
}

var _ store.Transactor = (*Transactor)(nil)

// RunInTx implements store.Transactor.
func (t *Transactor) RunInTx(ctx context.Context, fn store.TxFn) error {
	t.mu.Lock()
	t.Calls++
	err := t.Err
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx, nil)
}
