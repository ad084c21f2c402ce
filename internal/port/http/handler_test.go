package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aqmarket/escrow-service/internal/adapter/memory"
	"github.com/aqmarket/escrow-service/internal/platform/logger"
	"github.com/aqmarket/escrow-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "test-secret"
	testAdmin   = "admin1"
	testArbiter = "arb1"
	testSeller  = "seller1"
	testBuyer   = "buyer1"
	testDenom   = "uakt"
	testGateway = "https://ipfs.io/ipfs/"
	testPrice   = uint64(100_000_000)
)

type noopLogger struct{}

func (l *noopLogger) Debug(args ...interface{})                   {}
func (l *noopLogger) Debugf(template string, args ...interface{}) {}
func (l *noopLogger) Info(args ...interface{})                    {}
func (l *noopLogger) Infof(template string, args ...interface{})  {}
func (l *noopLogger) Warn(args ...interface{})                    {}
func (l *noopLogger) Warnf(template string, args ...interface{})  {}
func (l *noopLogger) Error(args ...interface{})                   {}
func (l *noopLogger) Errorf(template string, args ...interface{}) {}
func (l *noopLogger) Fatal(args ...interface{})                   {}
func (l *noopLogger) Fatalf(template string, args ...interface{}) {}
func (l *noopLogger) With(args ...interface{}) logger.Logger      { return l }

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	log := &noopLogger{}
	repo := memory.NewListingRepository()
	escrow := service.NewEscrowService(repo, nil, nil, nil, service.EscrowParams{
		Admin:         testAdmin,
		Arbiters:      []string{testArbiter},
		GatewayPrefix: testGateway,
		Denom:         testDenom,
	}, nil, log)
	query := service.NewQueryService(repo, nil, log)
	handler := NewListingHandler(escrow, query, log)

	return NewRouter(handler, testSecret, nil, log)
}

func signToken(t *testing.T, principal string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": principal,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, router *chi.Mux, method, path, principal string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if principal != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, principal))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func createBody() createListingRequest {
	return createListingRequest{
		Title:      "Vintage synth",
		ExternalID: testGateway + "QmHash",
		Text:       "Works fine",
		Tags:       []string{"music"},
		Contact:    "@seller1",
		Price:      testPrice,
	}
}

func createTestListing(t *testing.T, router *chi.Mux) uint64 {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/listings", testSeller, createBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp transitionResponse
	decodeBody(t, rec, &resp)
	return resp.ListingID
}

func TestHandler_CreateListing(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/listings", testSeller, createBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp transitionResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, uint64(1), resp.ListingID)
	require.NotNil(t, resp.Listing)
	assert.Equal(t, testSeller, resp.Listing.Seller)
	assert.False(t, resp.Listing.Purchased)
}

func TestHandler_CreateListing_RequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/listings", "", createBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_CreateListing_RejectsBadToken(t *testing.T) {
	router := newTestRouter(t)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(createBody()))
	req := httptest.NewRequest(http.MethodPost, "/api/listings", &buf)
	req.Header.Set("Authorization", "Bearer not-a-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_CreateListing_InvalidGateway(t *testing.T) {
	router := newTestRouter(t)

	body := createBody()
	body.ExternalID = "https://evil.example/QmHash"
	rec := doRequest(t, router, http.MethodPost, "/api/listings", testSeller, body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_GetListing(t *testing.T) {
	router := newTestRouter(t)
	id := createTestListing(t, router)

	rec := doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/listings/%d", id), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listingResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, id, resp.ListingID)
	assert.Equal(t, "Vintage synth", resp.Title)

	rec = doRequest(t, router, http.MethodGet, "/api/listings/999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/listings/not-a-number", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_EditListing_Authorization(t *testing.T) {
	router := newTestRouter(t)
	id := createTestListing(t, router)

	edit := editListingRequest{
		ExternalID: testGateway + "QmOther",
		Text:       "price drop",
		Price:      testPrice / 2,
	}

	rec := doRequest(t, router, http.MethodPut, fmt.Sprintf("/api/listings/%d", id), "stranger", edit)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodPut, fmt.Sprintf("/api/listings/%d", id), testSeller, edit)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp transitionResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Listing)
	assert.Equal(t, testPrice/2, resp.Listing.Price)
}

func TestHandler_FullEscrowFlow(t *testing.T) {
	router := newTestRouter(t)
	id := createTestListing(t, router)
	path := fmt.Sprintf("/api/listings/%d", id)

	rec := doRequest(t, router, http.MethodPost, path+"/purchase", testBuyer, purchaseRequest{Amount: testPrice, Denom: testDenom})
	require.Equal(t, http.StatusOK, rec.Code)

	var purchased transitionResponse
	decodeBody(t, rec, &purchased)
	require.NotNil(t, purchased.Listing)
	assert.True(t, purchased.Listing.Purchased)
	assert.Equal(t, testBuyer, purchased.Listing.Buyer)

	rec = doRequest(t, router, http.MethodPost, path+"/ship", testSeller, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, path+"/receive", testBuyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var settled transitionResponse
	decodeBody(t, rec, &settled)
	require.Len(t, settled.Transfers, 2)
	assert.Equal(t, transferResponse{Recipient: testSeller, Amount: 95_000_000, Denom: testDenom}, settled.Transfers[0])
	assert.Equal(t, transferResponse{Recipient: testAdmin, Amount: 5_000_000, Denom: testDenom}, settled.Transfers[1])

	// Settled listings no longer exist.
	rec = doRequest(t, router, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Purchase_IncorrectFunds(t *testing.T) {
	router := newTestRouter(t)
	id := createTestListing(t, router)

	rec := doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/listings/%d/purchase", id), testBuyer, purchaseRequest{Amount: 1, Denom: testDenom})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_CancelAfterShip_Conflicts(t *testing.T) {
	router := newTestRouter(t)
	id := createTestListing(t, router)
	path := fmt.Sprintf("/api/listings/%d", id)

	rec := doRequest(t, router, http.MethodPost, path+"/purchase", testBuyer, purchaseRequest{Amount: testPrice, Denom: testDenom})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, router, http.MethodPost, path+"/ship", testSeller, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, path+"/cancel", testBuyer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_ArbitrationFlow(t *testing.T) {
	router := newTestRouter(t)
	id := createTestListing(t, router)
	path := fmt.Sprintf("/api/listings/%d", id)

	rec := doRequest(t, router, http.MethodPost, path+"/purchase", testBuyer, purchaseRequest{Amount: testPrice, Denom: testDenom})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, router, http.MethodPost, path+"/ship", testSeller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, router, http.MethodPost, path+"/arbitration", testBuyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The disputed listing shows up in the disputed feed.
	rec = doRequest(t, router, http.MethodGet, "/api/listings/disputed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var disputed listingsResponse
	decodeBody(t, rec, &disputed)
	require.Len(t, disputed.Listings, 1)
	assert.True(t, disputed.Listings[0].ArbitrationRequested)

	rec = doRequest(t, router, http.MethodPost, path+"/arbitrate", testSeller, arbitrateRequest{FundsRecipient: testSeller})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodPost, path+"/arbitrate", testArbiter, arbitrateRequest{FundsRecipient: testBuyer})
	require.Equal(t, http.StatusOK, rec.Code)

	var ruled transitionResponse
	decodeBody(t, rec, &ruled)
	require.Len(t, ruled.Transfers, 1)
	assert.Equal(t, transferResponse{Recipient: testBuyer, Amount: testPrice, Denom: testDenom}, ruled.Transfers[0])
}

func TestHandler_ListCountSearch(t *testing.T) {
	router := newTestRouter(t)
	for i := 0; i < 12; i++ {
		createTestListing(t, router)
	}

	rec := doRequest(t, router, http.MethodGet, "/api/listings/count", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count countResponse
	decodeBody(t, rec, &count)
	assert.Equal(t, uint64(12), count.Count)

	rec = doRequest(t, router, http.MethodGet, "/api/listings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page listingsResponse
	decodeBody(t, rec, &page)
	require.Len(t, page.Listings, 10)
	assert.Equal(t, uint64(12), page.Listings[0].ListingID)

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/listings?start_after=%d", page.Listings[len(page.Listings)-1].ListingID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rest listingsResponse
	decodeBody(t, rec, &rest)
	assert.Len(t, rest.Listings, 2)

	rec = doRequest(t, router, http.MethodGet, "/api/listings?limit=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var limited listingsResponse
	decodeBody(t, rec, &limited)
	assert.Len(t, limited.Listings, 3)

	rec = doRequest(t, router, http.MethodGet, "/api/listings?start_after=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/listings/search?title=synth", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found listingsResponse
	decodeBody(t, rec, &found)
	assert.NotEmpty(t, found.Listings)
}

func TestHandler_DeleteListing(t *testing.T) {
	router := newTestRouter(t)
	id := createTestListing(t, router)
	path := fmt.Sprintf("/api/listings/%d", id)

	rec := doRequest(t, router, http.MethodDelete, path, testSeller, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
