package entity

import "errors"

var (
	ErrUnauthorized            = errors.New("caller is not authorized to perform this action")
	ErrAlreadyPurchased        = errors.New("listing has already been purchased")
	ErrNotShipped              = errors.New("listing has not been shipped")
	ErrNotEligible             = errors.New("listing is not in an eligible state for this action")
	ErrArbitrationNotRequested = errors.New("arbitration has not been requested for this listing")
	ErrInvalidRecipient        = errors.New("funds recipient must be the seller or the buyer")
	ErrIncorrectFunds          = errors.New("attached payment does not match the listing price")
	ErrContentTooLong          = errors.New("description text exceeds the maximum length")
	ErrLinkTooLong             = errors.New("external content reference exceeds the maximum length")
	ErrInvalidGateway          = errors.New("external content reference must use the configured gateway")
)
