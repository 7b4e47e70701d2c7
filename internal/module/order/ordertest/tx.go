package ordertest

import "context"

// TxRunner runs fn directly without a database transaction.
type TxRunner struct {
	Calls int
}

func (t *TxRunner) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.Calls++
	return fn(ctx)
}
