package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aqmarket/escrow-service/internal/domain/entity"
	"github.com/aqmarket/escrow-service/internal/platform/logger"
	"github.com/aqmarket/escrow-service/internal/port/http/middleware"
	"github.com/aqmarket/escrow-service/internal/repository"
	"github.com/aqmarket/escrow-service/internal/service"
	"github.com/go-chi/chi/v5"
)

// ListingHandler exposes the escrow lifecycle and the read queries over
// HTTP. All lifecycle routes expect an authenticated principal.
type ListingHandler struct {
	escrow *service.EscrowService
	query  *service.QueryService
	log    logger.Logger
}

func NewListingHandler(escrow *service.EscrowService, query *service.QueryService, log logger.Logger) *ListingHandler {
	return &ListingHandler{escrow: escrow, query: query, log: log}
}

func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	outcome, err := h.escrow.CreateListing(r.Context(), caller, service.CreateListingInput{
		Title:      req.Title,
		ExternalID: req.ExternalID,
		Text:       req.Text,
		Tags:       req.Tags,
		Contact:    req.Contact,
		Price:      req.Price,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toTransitionResponse(outcome))
}

func (h *ListingHandler) EditListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.listingID(w, r)
	if !ok {
		return
	}

	var req editListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	outcome, err := h.escrow.EditListing(r.Context(), caller, id, service.EditListingInput{
		ExternalID: req.ExternalID,
		Text:       req.Text,
		Tags:       req.Tags,
		Price:      req.Price,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTransitionResponse(outcome))
}

func (h *ListingHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.listingID(w, r)
	if !ok {
		return
	}

	outcome, err := h.escrow.DeleteListing(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTransitionResponse(outcome))
}

func (h *ListingHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.listingID(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	outcome, err := h.escrow.Purchase(r.Context(), caller, id, entity.Payment{
		Amount: req.Amount,
		Denom:  req.Denom,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTransitionResponse(outcome))
}

func (h *ListingHandler) CancelPurchase(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.escrow.CancelPurchase)
}

func (h *ListingHandler) SignShipped(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.escrow.SignShipped)
}

func (h *ListingHandler) SignReceived(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.escrow.SignReceived)
}

func (h *ListingHandler) RequestArbitration(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.escrow.RequestArbitration)
}

func (h *ListingHandler) Arbitrate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.listingID(w, r)
	if !ok {
		return
	}

	var req arbitrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	outcome, err := h.escrow.Arbitrate(r.Context(), caller, id, req.FundsRecipient)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTransitionResponse(outcome))
}

func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.listingID(w, r)
	if !ok {
		return
	}

	listing, err := h.query.GetListing(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toListingResponse(listing))
}

func (h *ListingHandler) CountListings(w http.ResponseWriter, r *http.Request) {
	count, err := h.query.Count(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	startAfter, limit, ok := h.pageParams(w, r)
	if !ok {
		return
	}

	listings, err := h.query.ListListings(r.Context(), startAfter, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toListingsResponse(listings))
}

func (h *ListingHandler) ListDisputed(w http.ResponseWriter, r *http.Request) {
	startAfter, limit, ok := h.pageParams(w, r)
	if !ok {
		return
	}

	listings, err := h.query.ListDisputed(r.Context(), startAfter, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toListingsResponse(listings))
}

func (h *ListingHandler) SearchListings(w http.ResponseWriter, r *http.Request) {
	_, limit, ok := h.pageParams(w, r)
	if !ok {
		return
	}

	listings, err := h.query.SearchByTitle(r.Context(), r.URL.Query().Get("title"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toListingsResponse(listings))
}

// transition handles the body-less lifecycle routes that only need the
// caller and the listing ID.
func (h *ListingHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, caller string, id uint64) (*service.TransitionOutcome, error),
) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.listingID(w, r)
	if !ok {
		return
	}

	outcome, err := fn(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTransitionResponse(outcome))
}

func (h *ListingHandler) principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return "", false
	}
	return principal, true
}

func (h *ListingHandler) listingID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.badRequest(w, "invalid listing id")
		return 0, false
	}
	return id, true
}

func (h *ListingHandler) pageParams(w http.ResponseWriter, r *http.Request) (*uint64, int, bool) {
	q := r.URL.Query()

	var startAfter *uint64
	if raw := q.Get("start_after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.badRequest(w, "invalid start_after parameter")
			return nil, 0, false
		}
		startAfter = &v
	}

	var limit int
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			h.badRequest(w, "invalid limit parameter")
			return nil, 0, false
		}
		limit = v
	}
	return startAfter, limit, true
}

func (h *ListingHandler) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (h *ListingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		h.log.Errorf("Internal error on %s %s: %v", r.Method, r.URL.Path, err)
		h.writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *ListingHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrAlreadyPurchased),
		errors.Is(err, entity.ErrNotShipped),
		errors.Is(err, entity.ErrNotEligible),
		errors.Is(err, entity.ErrArbitrationNotRequested):
		return http.StatusConflict
	case errors.Is(err, entity.ErrIncorrectFunds),
		errors.Is(err, entity.ErrInvalidRecipient),
		errors.Is(err, entity.ErrContentTooLong),
		errors.Is(err, entity.ErrLinkTooLong),
		errors.Is(err, entity.ErrInvalidGateway):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
