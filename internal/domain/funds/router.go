// Package funds computes the transfer instructions a settlement event
// produces. Amounts are integer base units; no instruction is executed
// here.
package funds

import "github.com/aqmarket/escrow-service/internal/domain/entity"

// Platform fee on normal settlement, in percent.
const feePercent = 5

// RouteSettlement splits the escrowed price between the seller and the
// admin fee wallet. The fee is computed first with floor division and
// the seller receives the remainder, so the two amounts always sum to
// the price exactly. The fee is decomposed so price*5 cannot overflow
// uint64; the result equals floor(price*5/100) for every price.
func RouteSettlement(price uint64, seller, admin, denom string) []entity.Transfer {
	fee := price/100*feePercent + price%100*feePercent/100
	sellerAmount := price - fee
	return []entity.Transfer{
		{Recipient: seller, Amount: sellerAmount, Denom: denom},
		{Recipient: admin, Amount: fee, Denom: denom},
	}
}

// RouteRefund returns the full escrowed price to the buyer on a
// pre-shipment cancellation. No fee is taken.
func RouteRefund(buyer string, price uint64, denom string) []entity.Transfer {
	return []entity.Transfer{
		{Recipient: buyer, Amount: price, Denom: denom},
	}
}

// RouteArbitration pays the full escrowed price to the recipient an
// arbiter ruled for. Recipient identity is validated by the caller
// before this is invoked.
func RouteArbitration(recipient string, price uint64, denom string) []entity.Transfer {
	return []entity.Transfer{
		{Recipient: recipient, Amount: price, Denom: denom},
	}
}

// AssertExactPayment requires the attached payment to match the listing
// price exactly in the settlement denom. Overpayment is rejected the
// same as underpayment; the escrow holds precisely the price.
func AssertExactPayment(payment entity.Payment, price uint64, denom string) error {
	if payment.Denom != denom || payment.Amount != price {
		return entity.ErrIncorrectFunds
	}
	return nil
}
