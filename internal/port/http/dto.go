package http

import (
	"time"

	"github.com/aqmarket/escrow-service/internal/domain/entity"
	"github.com/aqmarket/escrow-service/internal/service"
)

type createListingRequest struct {
	Title      string   `json:"title"`
	ExternalID string   `json:"external_id"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags"`
	Contact    string   `json:"contact"`
	Price      uint64   `json:"price"`
}

type editListingRequest struct {
	ExternalID string   `json:"external_id"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags"`
	Price      uint64   `json:"price"`
}

type purchaseRequest struct {
	Amount uint64 `json:"amount"`
	Denom  string `json:"denom"`
}

type arbitrateRequest struct {
	FundsRecipient string `json:"funds_recipient"`
}

// listingResponse is the external view of a listing. Escrow state is
// exposed as the three derived flags rather than the internal status tag.
type listingResponse struct {
	ListingID            uint64     `json:"listing_id"`
	Title                string     `json:"title"`
	ExternalID           string     `json:"external_id"`
	Text                 string     `json:"text"`
	Tags                 []string   `json:"tags"`
	Seller               string     `json:"seller"`
	Contact              string     `json:"contact"`
	Price                uint64     `json:"price"`
	Buyer                string     `json:"buyer,omitempty"`
	Purchased            bool       `json:"purchased"`
	Shipped              bool       `json:"shipped"`
	ArbitrationRequested bool       `json:"arbitration_requested"`
	CreatedAt            time.Time  `json:"created_at"`
	LastEditedAt         *time.Time `json:"last_edited_at,omitempty"`
}

type transferResponse struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Denom     string `json:"denom"`
}

type transitionResponse struct {
	ListingID uint64             `json:"listing_id"`
	Action    string             `json:"action"`
	Listing   *listingResponse   `json:"listing,omitempty"`
	Transfers []transferResponse `json:"transfers,omitempty"`
}

type listingsResponse struct {
	Listings []listingResponse `json:"listings"`
}

type countResponse struct {
	Count uint64 `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toListingResponse(l *entity.Listing) *listingResponse {
	if l == nil {
		return nil
	}
	return &listingResponse{
		ListingID:            l.ID,
		Title:                l.Title,
		ExternalID:           l.ExternalID,
		Text:                 l.Text,
		Tags:                 l.Tags,
		Seller:               l.Seller,
		Contact:              l.Contact,
		Price:                l.Price,
		Buyer:                l.Buyer,
		Purchased:            l.Purchased(),
		Shipped:              l.Shipped(),
		ArbitrationRequested: l.ArbitrationRequested(),
		CreatedAt:            l.CreatedAt,
		LastEditedAt:         l.LastEditedAt,
	}
}

func toListingsResponse(listings []entity.Listing) listingsResponse {
	out := listingsResponse{Listings: make([]listingResponse, 0, len(listings))}
	for i := range listings {
		out.Listings = append(out.Listings, *toListingResponse(&listings[i]))
	}
	return out
}

func toTransitionResponse(outcome *service.TransitionOutcome) transitionResponse {
	resp := transitionResponse{
		ListingID: outcome.ListingID,
		Action:    outcome.Action,
		Listing:   toListingResponse(outcome.Listing),
	}
	for _, t := range outcome.Transfers {
		resp.Transfers = append(resp.Transfers, transferResponse{
			Recipient: t.Recipient,
			Amount:    t.Amount,
			Denom:     t.Denom,
		})
	}
	return resp
}
