package payments

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CaptureRequest describes one card capture for an order.
type CaptureRequest struct {
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	Amount   decimal.Decimal
	Currency string
}

type CaptureResult struct {
	IntentID string `json:"payment_intent_id"`
}

// Gateway captures card payments. Implementations must be safe to call before the order transaction opens.
type Gateway interface {
	Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
}

// Simulated approves every capture without moving money.
type Simulated struct {
	Now func() time.Time
}

func (s *Simulated) Capture(_ context.Context, _ CaptureRequest) (*CaptureResult, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	return &CaptureResult{IntentID: fmt.Sprintf("pi_stripe_test_%d", now.UnixMilli())}, nil
}

const intentAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// DemoIntentID identifies a wallet payment: pi_demo_<unix ms>_<9 base36 chars>.
func DemoIntentID(now time.Time) string {
	suffix := make([]byte, 9)
	max := big.NewInt(int64(len(intentAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			suffix[i] = '0'
			continue
		}
		suffix[i] = intentAlphabet[n.Int64()]
	}
	return fmt.Sprintf("pi_demo_%d_%s", now.UnixMilli(), suffix)
}
