package mocks

import (
	"context"

	"kcs-server/shared/interfaces"
)

// TxRunner выполняет fn без реальной транзакции, передавая nil в качестве querier.
// Commits считает успешные вызовы, Rollbacks - неуспешные.
type TxRunner struct {
	Commits   int
	Rollbacks int
}

func (r *TxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.DBTX) error) error {
	if err := fn(ctx, nil); err != nil {
		r.Rollbacks++
		return err
	}
	r.Commits++
	return nil
}

var _ interfaces.TxRunner = (*TxRunner)(nil)
