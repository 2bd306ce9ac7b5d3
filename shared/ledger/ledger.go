// Package ledger хранит результаты вызовов провайдеров по идемпотентному токену стадии.
// Повторная доставка задания не приводит к повторному платному вызову.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// ErrMiss - записи с таким токеном нет.
var ErrMiss = errors.New("ledger miss")

// Store - хранилище результатов по токену.
type Store interface {
	Get(ctx context.Context, token string) ([]byte, error)
	// Put сохраняет результат, если токена еще нет. Существующая запись не перезаписывается.
	Put(ctx context.Context, token string, orderID uuid.UUID, stage string, output []byte) error
}

// Token = blake2b-256(orderId | stage | blake2b-256(request)).
func Token(orderID uuid.UUID, stage string, request []byte) string {
	content := blake2b.Sum256(request)
	h, _ := blake2b.New256(nil)
	h.Write([]byte(orderID.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(stage))
	h.Write([]byte{'|'})
	h.Write(content[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Guard оборачивает вызов: сначала ищет результат в Store, иначе вызывает и сохраняет.
type Guard struct {
	store  Store
	logger *zap.Logger
}

func NewGuard(store Store, logger *zap.Logger) *Guard {
	return &Guard{store: store, logger: logger.Named("StageLedger")}
}

// Do возвращает результат и признак того, что он взят из ledger.
// Ошибки самого ledger не мешают вызову: они только логируются.
func (g *Guard) Do(ctx context.Context, orderID uuid.UUID, stage string, request []byte, call func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	return g.DoChecked(ctx, orderID, stage, request, call, nil)
}

// DoChecked - Do с проверкой результата. Результат, отвергнутый accept, не сохраняется,
// и следующая попытка снова идет к провайдеру. Отвергнутая запись из ledger считается промахом.
func (g *Guard) DoChecked(ctx context.Context, orderID uuid.UUID, stage string, request []byte, call func(ctx context.Context) ([]byte, error), accept func([]byte) error) ([]byte, bool, error) {
	if g == nil || g.store == nil {
		out, err := call(ctx)
		if err != nil {
			return nil, false, err
		}
		if accept != nil {
			if err := accept(out); err != nil {
				return nil, false, err
			}
		}
		return out, false, nil
	}
	token := Token(orderID, stage, request)
	log := g.logger.With(zap.String("order_id", orderID.String()), zap.String("stage", stage))

	cached, err := g.store.Get(ctx, token)
	switch {
	case err == nil:
		if accept == nil || accept(cached) == nil {
			log.Debug("Ledger hit, reusing stored output")
			return cached, true, nil
		}
		log.Warn("Stored output rejected, calling provider again")
	case !errors.Is(err, ErrMiss):
		log.Warn("Ledger lookup failed, calling provider", zap.Error(err))
	}

	out, err := call(ctx)
	if err != nil {
		return nil, false, err
	}
	if accept != nil {
		if err := accept(out); err != nil {
			return nil, false, err
		}
	}
	if putErr := g.store.Put(ctx, token, orderID, stage, out); putErr != nil {
		log.Warn("Failed to store ledger entry", zap.Error(putErr))
	}
	return out, false, nil
}
