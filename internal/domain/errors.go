package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for the transport layer.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAccess        Kind = "access"
	KindUnauthorized  Kind = "unauthorized"
	KindNotFound      Kind = "not_found"
	KindStateConflict Kind = "state_conflict"
	KindPayment       Kind = "payment"
	KindConcurrency   Kind = "concurrency"
	KindUnavailable   Kind = "unavailable"
	KindRateLimited   Kind = "rate_limited"
	KindFatal         Kind = "fatal"
)

// Error is a classified domain failure. Two Errors match under errors.Is when their codes match,
// so detail-carrying copies still match the sentinel they were derived from.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy carrying one more detail.
func (e *Error) With(key string, value interface{}) *Error {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Withf returns a copy with a formatted message.
func (e *Error) Withf(format string, args ...interface{}) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation builds an ad hoc validation failure.
func Validation(message string) *Error {
	return ErrValidation.Withf("%s", message)
}

// KindOf returns the kind of a domain error, or KindFatal for anything unclassified.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindFatal
}

var (
	ErrValidation = newError(KindValidation, "validation", "Invalid request")

	ErrNotAuthenticated      = newError(KindUnauthorized, "not_authenticated", "Not authenticated")
	ErrInvalidEmail          = newError(KindUnauthorized, "invalid_email", "Invalid Email")
	ErrIncorrectPassword     = newError(KindUnauthorized, "incorrect_password", "Incorrect Password")
	ErrEmailPasswordRequired = newError(KindValidation, "email_password_required", "Email and password are required")
	ErrEmailTaken            = newError(KindStateConflict, "email_taken", "An account with this email already exists")

	ErrUserNotFound    = newError(KindNotFound, "user_not_found", "User not found")
	ErrListingNotFound = newError(KindNotFound, "listing_not_found", "Listing not found")
	ErrAuctionNotFound = newError(KindNotFound, "auction_not_found", "Auction not found")
	ErrOrderNotFound   = newError(KindNotFound, "order_not_found", "Order not found")
	ErrWalletNotFound  = newError(KindNotFound, "wallet_not_found", "Wallet not found")

	ErrUnverified     = newError(KindAccess, "unverified", "Please verify your email before continuing")
	ErrNotBuyer       = newError(KindAccess, "not_buyer", "Only the buyer can perform this action")
	ErrNotSeller      = newError(KindAccess, "not_seller", "Only the seller can perform this action")
	ErrNotParticipant = newError(KindAccess, "not_participant", "You are not part of this order")
	ErrSelfBid        = newError(KindAccess, "self_bid", "You cannot bid on your own listing")
	ErrSelfPurchase   = newError(KindAccess, "self_purchase", "You cannot buy your own listing")
	ErrNotHighBidder  = newError(KindAccess, "not_high_bidder", "Only the highest bidder can check out this auction")

	ErrBidTooLow = newError(KindValidation, "bid_too_low", "Bid must be higher than the current price")

	ErrAuctionEnded        = newError(KindStateConflict, "auction_ended", "Auction has ended")
	ErrListingUnavailable  = newError(KindStateConflict, "listing_unavailable", "Listing is no longer available")
	ErrOrderNotPending     = newError(KindStateConflict, "order_not_pending", "Order is no longer pending")
	ErrOrderNotPaid        = newError(KindStateConflict, "order_not_paid", "Order has not been paid yet")
	ErrAlreadyPaid         = newError(KindStateConflict, "already_paid", "Order has already been paid")
	ErrOrderNotCompleted   = newError(KindStateConflict, "order_not_completed", "Order must be completed before rating")
	ErrActiveCodeExists    = newError(KindStateConflict, "active_code_exists", "Active code already exists")
	ErrNoHandoffCode       = newError(KindStateConflict, "no_handoff_code", "No handoff code has been generated yet")
	ErrCodeExpired         = newError(KindStateConflict, "code_expired", "Code expired, ask the seller to generate a new one")
	ErrAttemptsExceeded    = newError(KindStateConflict, "attempts_exceeded", "Too many attempts, ask the seller to regenerate")
	ErrCodeMismatch        = newError(KindStateConflict, "code_mismatch", "Incorrect code. Please try again.")
	ErrInvalidToken        = newError(KindStateConflict, "invalid_token", "Invalid or expired QR code.")
	ErrAlreadyRated        = newError(KindStateConflict, "already_rated", "You have already rated this order")
	ErrVerificationExpired = newError(KindStateConflict, "verification_expired", "Verification link has expired")
	ErrVerificationInvalid = newError(KindValidation, "verification_invalid", "Invalid verification link")
	ErrResendCooldown      = newError(KindRateLimited, "resend_cooldown", "Please wait before requesting another verification email")

	ErrInsufficientBalance = newError(KindPayment, "insufficient_balance", "Insufficient demo balance")
	ErrCardInactive        = newError(KindPayment, "card_inactive", "Virtual card not active")
	ErrPaymentDeclined     = newError(KindPayment, "payment_declined", "Payment was declined")

	ErrConcurrentBid    = newError(KindConcurrency, "concurrent_bid", "Another bid was accepted first, refresh and try again")
	ErrConcurrentUpdate = newError(KindConcurrency, "concurrent_update", "Order changed while processing, refresh and try again")

	ErrEmailDelivery      = newError(KindUnavailable, "email_delivery_failed", "Could not send the email, please try again")
	ErrServiceUnavailable = newError(KindUnavailable, "service_unavailable", "Service unavailable")

	ErrReconciliation = newError(KindFatal, "reconciliation_required", "Payment captured but order could not be updated")
)

// BidTooLow cites the minimum the bid must exceed.
func BidTooLow(current string) *Error {
	return ErrBidTooLow.Withf("Bid must be higher than current price of £%s", current).With("min_amount", current)
}

// ActiveCodeExists reports when the live code expires.
func ActiveCodeExists(expiresAt time.Time) *Error {
	return ErrActiveCodeExists.Withf("Active code already exists (expires at %s)", expiresAt.UTC().Format(time.RFC3339)).
		With("expires_at", expiresAt.UTC())
}
