package entity

// Transfer is a single instruction for the settlement ledger. The
// service only computes and emits these; the ledger collaborator is the
// sole authority on whether funds actually move.
type Transfer struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Denom     string `json:"denom"`
}

// Payment is the funds a buyer attaches to a purchase request.
type Payment struct {
	Amount uint64 `json:"amount"`
	Denom  string `json:"denom"`
}
