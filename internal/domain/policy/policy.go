// Package policy answers "may principal P perform action A on listing L
// in its current state?". Every function is a pure predicate; callers
// turn a false into the appropriate typed error.
package policy

import "github.com/aqmarket/escrow-service/internal/domain/entity"

// ArbiterSet is the fixed, configuration-supplied set of principals
// empowered to arbitrate disputes system-wide.
type ArbiterSet map[string]struct{}

func NewArbiterSet(arbiters []string) ArbiterSet {
	set := make(ArbiterSet, len(arbiters))
	for _, a := range arbiters {
		set[a] = struct{}{}
	}
	return set
}

func (s ArbiterSet) Contains(principal string) bool {
	_, ok := s[principal]
	return ok
}

func CanEditOrDelete(caller string, l *entity.Listing) bool {
	return caller == l.Seller && !l.Purchased()
}

func CanSignShipped(caller string, l *entity.Listing, arbiters ArbiterSet) bool {
	return caller == l.Seller || arbiters.Contains(caller)
}

func CanSignReceived(caller string, l *entity.Listing) bool {
	return caller == l.Buyer && l.Shipped()
}

func CanPurchase(l *entity.Listing) bool {
	return !l.Purchased()
}

func CanCancelPurchase(caller string, l *entity.Listing) bool {
	return l.Purchased() && !l.Shipped() && caller == l.Buyer
}

func CanRequestArbitration(caller string, l *entity.Listing) bool {
	return l.Shipped() && l.Purchased() && (caller == l.Seller || caller == l.Buyer)
}

func CanArbitrate(caller string, l *entity.Listing, arbiters ArbiterSet) bool {
	return arbiters.Contains(caller) && l.ArbitrationRequested()
}
