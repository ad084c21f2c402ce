package entity

import (
	"strings"
	"time"
)

type ListingStatus string

const (
	// StatusOpen: listed, editable, not yet purchased.
	StatusOpen ListingStatus = "OPEN"
	// StatusPurchased: buyer has locked funds, seller has not shipped.
	StatusPurchased ListingStatus = "PURCHASED"
	// StatusShipped: seller signed shipment, waiting for the buyer's receipt.
	StatusShipped ListingStatus = "SHIPPED"
	// StatusDisputed: arbitration requested on a shipped listing.
	StatusDisputed ListingStatus = "DISPUTED"
)

const (
	// Block-sized text cap carried over from the on-chain contract.
	MaxTextLength = 499
	// Single content link only; anything longer is link stuffing.
	MaxExternalIDLength = 128
)

// Listing is a sale offer with associated escrow state. The record's
// existence in the store is itself the "funds are held" signal: settlement
// removes it. Seller, price and ID never change after creation.
type Listing struct {
	ID           uint64        `bson:"_id" json:"listing_id"`
	Title        string        `bson:"title" json:"title"`
	ExternalID   string        `bson:"external_id" json:"external_id"`
	Text         string        `bson:"text" json:"text"`
	Tags         []string      `bson:"tags" json:"tags"`
	Seller       string        `bson:"seller" json:"seller"`
	Contact      string        `bson:"contact" json:"contact"`
	Price        uint64        `bson:"price" json:"price"`
	Buyer        string        `bson:"buyer,omitempty" json:"buyer,omitempty"`
	Status       ListingStatus `bson:"status" json:"status"`
	CreatedAt    time.Time     `bson:"created_at" json:"created_at"`
	LastEditedAt *time.Time    `bson:"last_edited_at,omitempty" json:"last_edited_at,omitempty"`
}

// ValidateContent checks the caller-supplied content fields shared by
// create and edit.
func ValidateContent(externalID, text, gatewayPrefix string) error {
	if len(text) > MaxTextLength {
		return ErrContentTooLong
	}
	if len(externalID) > MaxExternalIDLength {
		return ErrLinkTooLong
	}
	if !strings.HasPrefix(externalID, gatewayPrefix) {
		return ErrInvalidGateway
	}
	return nil
}

func NewListing(id uint64, title, externalID, text string, tags []string, seller, contact string, price uint64, gatewayPrefix string, now time.Time) (*Listing, error) {
	if err := ValidateContent(externalID, text, gatewayPrefix); err != nil {
		return nil, err
	}
	return &Listing{
		ID:         id,
		Title:      title,
		ExternalID: externalID,
		Text:       text,
		Tags:       tags,
		Seller:     seller,
		Contact:    contact,
		Price:      price,
		Status:     StatusOpen,
		CreatedAt:  now,
	}, nil
}

func (l *Listing) Purchased() bool {
	return l.Status == StatusPurchased || l.Status == StatusShipped || l.Status == StatusDisputed
}

func (l *Listing) Shipped() bool {
	return l.Status == StatusShipped || l.Status == StatusDisputed
}

func (l *Listing) ArbitrationRequested() bool {
	return l.Status == StatusDisputed
}

// ApplyEdit replaces the mutable fields. Edits are blocked once a buyer
// has locked funds; price is part of the escrow agreement by then.
func (l *Listing) ApplyEdit(externalID, text string, tags []string, price uint64, now time.Time) error {
	if l.Purchased() {
		return ErrAlreadyPurchased
	}
	l.ExternalID = externalID
	l.Text = text
	l.Tags = tags
	l.Price = price
	edited := now
	l.LastEditedAt = &edited
	return nil
}

func (l *Listing) MarkPurchased(buyer string) error {
	if l.Purchased() {
		return ErrAlreadyPurchased
	}
	l.Buyer = buyer
	l.Status = StatusPurchased
	return nil
}

// CancelPurchase reopens the listing before shipment. Buyer and
// purchased state are cleared together so the two never disagree.
func (l *Listing) CancelPurchase() error {
	if !l.Purchased() || l.Shipped() {
		return ErrNotEligible
	}
	l.Buyer = ""
	l.Status = StatusOpen
	return nil
}

// MarkShipped is idempotent: re-signing a shipped or disputed listing
// changes nothing and is not an error.
func (l *Listing) MarkShipped() error {
	if !l.Purchased() {
		return ErrNotEligible
	}
	if l.Status == StatusPurchased {
		l.Status = StatusShipped
	}
	return nil
}

func (l *Listing) MarkDisputed() error {
	if !l.Shipped() || !l.Purchased() {
		return ErrNotEligible
	}
	l.Status = StatusDisputed
	return nil
}
