package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"kcs-server/shared/interfaces"
)

const (
	getLedgerQuery = `SELECT output FROM stage_ledger WHERE token = $1`
	putLedgerQuery = `INSERT INTO stage_ledger (token, order_id, stage, output) VALUES ($1, $2, $3, $4) ON CONFLICT (token) DO NOTHING`
)

// PgStore - ledger в таблице stage_ledger, когда Redis не настроен.
type PgStore struct {
	db interfaces.DBTX
}

var _ Store = (*PgStore)(nil)

func NewPgStore(db interfaces.DBTX) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Get(ctx context.Context, token string) ([]byte, error) {
	var out []byte
	err := s.db.QueryRow(ctx, getLedgerQuery, token).Scan(&out)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("pg ledger get: %w", err)
	}
	return out, nil
}

func (s *PgStore) Put(ctx context.Context, token string, orderID uuid.UUID, stage string, output []byte) error {
	if _, err := s.db.Exec(ctx, putLedgerQuery, token, orderID, stage, output); err != nil {
		return fmt.Errorf("pg ledger put (order %s, stage %s): %w", orderID, stage, err)
	}
	return nil
}
