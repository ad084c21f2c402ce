package nats

import (
	"context"
	"time"

	"github.com/aqmarket/escrow-service/internal/domain/entity"
	"github.com/google/uuid"
)

const transferSubject = "escrow.transfers"

// LedgerEmitter hands computed transfer instructions to the settlement
// ledger. The ledger executes them together with the store commit and
// is the sole authority on whether funds actually move.
type LedgerEmitter interface {
	EmitTransfers(ctx context.Context, listingID uint64, action string, transfers []entity.Transfer) error
}

// TransferBatch is the wire shape the ledger consumes. Instructions are
// ordered; the ledger must apply them in sequence or not at all.
type TransferBatch struct {
	BatchID   string            `json:"batch_id"`
	ListingID uint64            `json:"listing_id"`
	Action    string            `json:"action"`
	EmittedAt time.Time         `json:"emitted_at"`
	Transfers []entity.Transfer `json:"transfers"`
}

type ledgerEmitter struct {
	publisher MessagePublisher
}

func NewLedgerEmitter(publisher MessagePublisher) LedgerEmitter {
	return &ledgerEmitter{publisher: publisher}
}

func (e *ledgerEmitter) EmitTransfers(ctx context.Context, listingID uint64, action string, transfers []entity.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	batch := TransferBatch{
		BatchID:   uuid.NewString(),
		ListingID: listingID,
		Action:    action,
		EmittedAt: time.Now().UTC(),
		Transfers: transfers,
	}
	return e.publisher.Publish(ctx, transferSubject, batch)
}
