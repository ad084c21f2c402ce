package service

import (
	"context"
	"errors"
	"sync"
	"time"

	natsadapter "github.com/aqmarket/escrow-service/internal/adapter/nats"
	"github.com/aqmarket/escrow-service/internal/domain/entity"
	"github.com/aqmarket/escrow-service/internal/domain/funds"
	"github.com/aqmarket/escrow-service/internal/domain/policy"
	"github.com/aqmarket/escrow-service/internal/platform/logger"
	"github.com/aqmarket/escrow-service/internal/platform/metrics"
	"github.com/aqmarket/escrow-service/internal/repository"
	"github.com/google/uuid"
)

const (
	ActionCreate             = "create_listing"
	ActionEdit               = "edit_listing"
	ActionDelete             = "delete_listing"
	ActionPurchase           = "purchase"
	ActionCancelPurchase     = "cancel_purchase"
	ActionSignShipped        = "sign_shipped"
	ActionSignReceived       = "sign_received"
	ActionRequestArbitration = "request_arbitration"
	ActionArbitrate          = "arbitrate"
)

const (
	natsSubjectListingCreated       = "listing.created"
	natsSubjectListingEdited        = "listing.edited"
	natsSubjectListingDeleted       = "listing.deleted"
	natsSubjectListingPurchased     = "listing.purchased"
	natsSubjectPurchaseCancelled    = "listing.purchase_cancelled"
	natsSubjectListingShipped       = "listing.shipped"
	natsSubjectListingReceived      = "listing.received"
	natsSubjectArbitrationRequested = "listing.arbitration_requested"
	natsSubjectListingArbitrated    = "listing.arbitrated"
)

// lockStripes bounds the per-listing mutex table; transitions on the
// same listing always serialize, transitions on different listings
// rarely contend.
const lockStripes = 64

// TransitionOutcome is the structured result of a lifecycle transition.
// Listing is nil when the transition removed the record; Transfers are
// the instructions handed to the settlement ledger.
type TransitionOutcome struct {
	ListingID uint64            `json:"listing_id"`
	Action    string            `json:"action"`
	Listing   *entity.Listing   `json:"listing,omitempty"`
	Transfers []entity.Transfer `json:"transfers,omitempty"`
}

type CreateListingInput struct {
	Title      string
	ExternalID string
	Text       string
	Tags       []string
	Contact    string
	Price      uint64
}

type EditListingInput struct {
	ExternalID string
	Text       string
	Tags       []string
	Price      uint64
}

// EscrowParams carries the initialization-time principals and
// settlement parameters. Admin and arbiters are fixed for the process
// lifetime; there is no runtime mutation path.
type EscrowParams struct {
	Admin         string
	Arbiters      []string
	GatewayPrefix string
	Denom         string
}

type listingEvent struct {
	EventID    string            `json:"event_id"`
	Action     string            `json:"action"`
	ListingID  uint64            `json:"listing_id"`
	Actor      string            `json:"actor"`
	OccurredAt time.Time         `json:"occurred_at"`
	Transfers  []entity.Transfer `json:"transfers,omitempty"`
}

// EscrowService is the listing lifecycle state machine. Every
// transition follows the same sequence: load, authorize, mutate,
// persist, emit. Nothing is persisted on any failure path.
type EscrowService struct {
	repo          repository.ListingRepository
	cache         repository.ListingCache
	publisher     natsadapter.MessagePublisher
	ledger        natsadapter.LedgerEmitter
	arbiters      policy.ArbiterSet
	admin         string
	denom         string
	gatewayPrefix string
	metrics       *metrics.MetricsManager
	log           logger.Logger
	locks         [lockStripes]sync.Mutex
	now           func() time.Time
}

func NewEscrowService(
	repo repository.ListingRepository,
	cache repository.ListingCache,
	publisher natsadapter.MessagePublisher,
	ledger natsadapter.LedgerEmitter,
	params EscrowParams,
	mm *metrics.MetricsManager,
	log logger.Logger,
) *EscrowService {
	return &EscrowService{
		repo:          repo,
		cache:         cache,
		publisher:     publisher,
		ledger:        ledger,
		arbiters:      policy.NewArbiterSet(params.Arbiters),
		admin:         params.Admin,
		denom:         params.Denom,
		gatewayPrefix: params.GatewayPrefix,
		metrics:       mm,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *EscrowService) lock(id uint64) func() {
	mu := &s.locks[id%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *EscrowService) CreateListing(ctx context.Context, caller string, in CreateListingInput) (*TransitionOutcome, error) {
	if err := entity.ValidateContent(in.ExternalID, in.Text, s.gatewayPrefix); err != nil {
		return nil, s.reject(ActionCreate, err)
	}

	id, err := s.repo.NextID(ctx)
	if err != nil {
		s.log.Errorf("CreateListing: failed to allocate listing ID: %v", err)
		return nil, err
	}

	listing, err := entity.NewListing(id, in.Title, in.ExternalID, in.Text, in.Tags, caller, in.Contact, in.Price, s.gatewayPrefix, s.now())
	if err != nil {
		return nil, s.reject(ActionCreate, err)
	}

	if err := s.repo.Insert(ctx, listing); err != nil {
		s.log.Errorf("CreateListing: failed to insert listing %d: %v", id, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ListingsCreatedTotal.Inc()
	}
	s.publishEvent(ctx, natsSubjectListingCreated, ActionCreate, id, caller, nil)
	s.log.Infof("Listing %d created by seller %s", id, caller)

	return &TransitionOutcome{ListingID: id, Action: ActionCreate, Listing: listing}, nil
}

func (s *EscrowService) EditListing(ctx context.Context, caller string, id uint64, in EditListingInput) (*TransitionOutcome, error) {
	if err := entity.ValidateContent(in.ExternalID, in.Text, s.gatewayPrefix); err != nil {
		return nil, s.reject(ActionEdit, err)
	}

	defer s.lock(id)()

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject(ActionEdit, err)
	}
	if caller != listing.Seller {
		return nil, s.reject(ActionEdit, entity.ErrUnauthorized)
	}
	if err := listing.ApplyEdit(in.ExternalID, in.Text, in.Tags, in.Price, s.now()); err != nil {
		return nil, s.reject(ActionEdit, err)
	}

	if err := s.repo.Update(ctx, listing); err != nil {
		s.log.Errorf("EditListing: failed to update listing %d: %v", id, err)
		return nil, err
	}

	s.invalidate(ctx, id)
	s.publishEvent(ctx, natsSubjectListingEdited, ActionEdit, id, caller, nil)
	s.log.Infof("Listing %d edited by seller %s", id, caller)

	return &TransitionOutcome{ListingID: id, Action: ActionEdit, Listing: listing}, nil
}

// DeleteListing is the seller withdrawing an unsold offer. A purchased
// listing holds the buyer's escrow and cannot be erased by the seller.
func (s *EscrowService) DeleteListing(ctx context.Context, caller string, id uint64) (*TransitionOutcome, error) {
	defer s.lock(id)()

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject(ActionDelete, err)
	}
	if caller != listing.Seller {
		return nil, s.reject(ActionDelete, entity.ErrUnauthorized)
	}
	if listing.Purchased() {
		return nil, s.reject(ActionDelete, entity.ErrAlreadyPurchased)
	}

	if err := s.repo.Remove(ctx, id); err != nil {
		s.log.Errorf("DeleteListing: failed to remove listing %d: %v", id, err)
		return nil, err
	}

	s.invalidate(ctx, id)
	s.publishEvent(ctx, natsSubjectListingDeleted, ActionDelete, id, caller, nil)
	s.log.Infof("Listing %d deleted by seller %s", id, caller)

	return &TransitionOutcome{ListingID: id, Action: ActionDelete}, nil
}

func (s *EscrowService) Purchase(ctx context.Context, caller string, id uint64, payment entity.Payment) (*TransitionOutcome, error) {
	defer s.lock(id)()

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject(ActionPurchase, err)
	}
	if !policy.CanPurchase(listing) {
		return nil, s.reject(ActionPurchase, entity.ErrAlreadyPurchased)
	}
	if err := funds.AssertExactPayment(payment, listing.Price, s.denom); err != nil {
		return nil, s.reject(ActionPurchase, err)
	}
	if err := listing.MarkPurchased(caller); err != nil {
		return nil, s.reject(ActionPurchase, err)
	}

	if err := s.repo.Update(ctx, listing); err != nil {
		s.log.Errorf("Purchase: failed to update listing %d: %v", id, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PurchasesTotal.Inc()
	}
	s.invalidate(ctx, id)
	s.publishEvent(ctx, natsSubjectListingPurchased, ActionPurchase, id, caller, nil)
	s.log.Infof("Listing %d purchased by %s for %d%s", id, caller, listing.Price, s.denom)

	return &TransitionOutcome{ListingID: id, Action: ActionPurchase, Listing: listing}, nil
}

func (s *EscrowService) CancelPurchase(ctx context.Context, caller string, id uint64) (*TransitionOutcome, error) {
	defer s.lock(id)()

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject(ActionCancelPurchase, err)
	}
	if !listing.Purchased() || listing.Shipped() {
		return nil, s.reject(ActionCancelPurchase, entity.ErrNotEligible)
	}
	if caller != listing.Buyer {
		return nil, s.reject(ActionCancelPurchase, entity.ErrUnauthorized)
	}

	transfers := funds.RouteRefund(listing.Buyer, listing.Price, s.denom)
	if err := listing.CancelPurchase(); err != nil {
		return nil, s.reject(ActionCancelPurchase, err)
	}

	if err := s.repo.Update(ctx, listing); err != nil {
		s.log.Errorf("CancelPurchase: failed to update listing %d: %v", id, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CancellationsTotal.Inc()
	}
	s.invalidate(ctx, id)
	s.emitTransfers(ctx, id, ActionCancelPurchase, transfers)
	s.publishEvent(ctx, natsSubjectPurchaseCancelled, ActionCancelPurchase, id, caller, transfers)
	s.log.Infof("Purchase of listing %d cancelled by buyer %s, refund emitted", id, caller)

	return &TransitionOutcome{ListingID: id, Action: ActionCancelPurchase, Listing: listing, Transfers: transfers}, nil
}

// SignShipped is idempotent: the seller re-signing a shipped listing is
// not an error and produces no duplicate side effects.
func (s *EscrowService) SignShipped(ctx context.Context, caller string, id uint64) (*TransitionOutcome, error) {
	defer s.lock(id)()

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject(ActionSignShipped, err)
	}
	if !policy.CanSignShipped(caller, listing, s.arbiters) {
		return nil, s.reject(ActionSignShipped, entity.ErrUnauthorized)
	}

	alreadyShipped := listing.Shipped()
	if err := listing.MarkShipped(); err != nil {
		return nil, s.reject(ActionSignShipped, err)
	}

	if !alreadyShipped {
		if err := s.repo.Update(ctx, listing); err != nil {
			s.log.Errorf("SignShipped: failed to update listing %d: %v", id, err)
			return nil, err
		}
		s.invalidate(ctx, id)
		s.publishEvent(ctx, natsSubjectListingShipped, ActionSignShipped, id, caller, nil)
		s.log.Infof("Listing %d signed shipped by %s", id, caller)
	}

	return &TransitionOutcome{ListingID: id, Action: ActionSignShipped, Listing: listing}, nil
}

// SignReceived is the normal settlement path: the buyer confirms
// receipt, the seller is paid 95%, the admin wallet takes the 5% fee,
// and the listing record is removed. The record's absence is the signal
// that no funds are held any more.
func (s *EscrowService) SignReceived(ctx context.Context, caller string, id uint64) (*TransitionOutcome, error) {
	defer s.lock(id)()

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject(ActionSignReceived, err)
	}
	if !listing.Shipped() {
		return nil, s.reject(ActionSignReceived, entity.ErrNotShipped)
	}
	if caller != listing.Buyer {
		return nil, s.reject(ActionSignReceived, entity.ErrUnauthorized)
	}

	transfers := funds.RouteSettlement(listing.Price, listing.Seller, s.admin, s.denom)

	if err := s.repo.Remove(ctx, id); err != nil {
		s.log.Errorf("SignReceived: failed to remove listing %d: %v", id, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SettlementsTotal.Inc()
	}
	s.invalidate(ctx, id)
	s.emitTransfers(ctx, id, ActionSignReceived, transfers)
	s.publishEvent(ctx, natsSubjectListingReceived, ActionSignReceived, id, caller, transfers)
	s.log.Infof("Listing %d settled: %d%s to seller %s, fee to admin", id, transfers[0].Amount, s.denom, listing.Seller)

	return &TransitionOutcome{ListingID: id, Action: ActionSignReceived, Transfers: transfers}, nil
}

func (s *EscrowService) RequestArbitration(ctx context.Context, caller string, id uint64) (*TransitionOutcome, error) {
	defer s.lock(id)()

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject(ActionRequestArbitration, err)
	}
	if !listing.Shipped() || !listing.Purchased() {
		return nil, s.reject(ActionRequestArbitration, entity.ErrNotEligible)
	}
	if caller != listing.Seller && caller != listing.Buyer {
		return nil, s.reject(ActionRequestArbitration, entity.ErrUnauthorized)
	}
	if err := listing.MarkDisputed(); err != nil {
		return nil, s.reject(ActionRequestArbitration, err)
	}

	if err := s.repo.Update(ctx, listing); err != nil {
		s.log.Errorf("RequestArbitration: failed to update listing %d: %v", id, err)
		return nil, err
	}

	s.invalidate(ctx, id)
	s.publishEvent(ctx, natsSubjectArbitrationRequested, ActionRequestArbitration, id, caller, nil)
	s.log.Infof("Arbitration requested on listing %d by %s", id, caller)

	return &TransitionOutcome{ListingID: id, Action: ActionRequestArbitration, Listing: listing}, nil
}

// Arbitrate settles a disputed escrow: an arbiter rules the full price
// to either the seller or the buyer and the listing record is removed.
func (s *EscrowService) Arbitrate(ctx context.Context, caller string, id uint64, fundsRecipient string) (*TransitionOutcome, error) {
	defer s.lock(id)()

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject(ActionArbitrate, err)
	}
	if !listing.ArbitrationRequested() {
		return nil, s.reject(ActionArbitrate, entity.ErrArbitrationNotRequested)
	}
	if !s.arbiters.Contains(caller) {
		return nil, s.reject(ActionArbitrate, entity.ErrUnauthorized)
	}
	if fundsRecipient != listing.Seller && fundsRecipient != listing.Buyer {
		return nil, s.reject(ActionArbitrate, entity.ErrInvalidRecipient)
	}

	transfers := funds.RouteArbitration(fundsRecipient, listing.Price, s.denom)

	if err := s.repo.Remove(ctx, id); err != nil {
		s.log.Errorf("Arbitrate: failed to remove listing %d: %v", id, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ArbitrationsTotal.Inc()
	}
	s.invalidate(ctx, id)
	s.emitTransfers(ctx, id, ActionArbitrate, transfers)
	s.publishEvent(ctx, natsSubjectListingArbitrated, ActionArbitrate, id, caller, transfers)
	s.log.Infof("Listing %d arbitrated by %s, funds to %s", id, caller, fundsRecipient)

	return &TransitionOutcome{ListingID: id, Action: ActionArbitrate, Transfers: transfers}, nil
}

// reject records a denied transition and passes the typed error through
// unchanged.
func (s *EscrowService) reject(action string, err error) error {
	if s.metrics != nil {
		s.metrics.TransitionErrors.WithLabelValues(action, errorType(err)).Inc()
	}
	return err
}

func (s *EscrowService) invalidate(ctx context.Context, id uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		s.log.Warnf("Failed to invalidate cache for listing %d: %v", id, err)
	}
}

// emitTransfers hands instructions to the settlement ledger. The same
// instructions are returned in the outcome, so a publish failure is
// logged rather than failing an already-persisted transition.
func (s *EscrowService) emitTransfers(ctx context.Context, id uint64, action string, transfers []entity.Transfer) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.EmitTransfers(ctx, id, action, transfers); err != nil {
		s.log.Warnf("Failed to emit transfer instructions for listing %d (%s): %v", id, action, err)
	}
}

func (s *EscrowService) publishEvent(ctx context.Context, subject, action string, id uint64, actor string, transfers []entity.Transfer) {
	if s.publisher == nil {
		return
	}
	event := listingEvent{
		EventID:    uuid.NewString(),
		Action:     action,
		ListingID:  id,
		Actor:      actor,
		OccurredAt: s.now(),
		Transfers:  transfers,
	}
	if err := s.publisher.Publish(ctx, subject, event); err != nil {
		s.log.Warnf("Failed to publish %s event for listing %d: %v", subject, id, err)
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, entity.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, entity.ErrAlreadyPurchased):
		return "already_purchased"
	case errors.Is(err, entity.ErrNotShipped):
		return "not_shipped"
	case errors.Is(err, entity.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, entity.ErrArbitrationNotRequested):
		return "arbitration_not_requested"
	case errors.Is(err, entity.ErrInvalidRecipient):
		return "invalid_recipient"
	case errors.Is(err, entity.ErrIncorrectFunds):
		return "incorrect_funds"
	case errors.Is(err, entity.ErrContentTooLong):
		return "content_too_long"
	case errors.Is(err, entity.ErrLinkTooLong):
		return "link_too_long"
	case errors.Is(err, entity.ErrInvalidGateway):
		return "invalid_gateway"
	default:
		return "internal"
	}
}
