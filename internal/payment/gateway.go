package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransferIn  = "in"
	TransferOut = "out"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownGateway   = errors.New("unknown payment gateway")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

type PaymentIntentRequest struct {
	OrderCode   string
	Amount      int64
	Description string
}

// PaymentIntent is handed back to the customer to complete payment.
type PaymentIntent struct {
	Gateway     string `json:"gateway"`
	QRCodeURL   string `json:"qr_code_url,omitempty"`
	PayURL      string `json:"pay_url,omitempty"`
	Deeplink    string `json:"deeplink,omitempty"`
	BankAccount string `json:"bank_account,omitempty"`
	BankName    string `json:"bank_name,omitempty"`
	Amount      int64  `json:"amount"`
	OrderCode   string `json:"order_code"`
}

// WebhookPayload is a gateway notification normalised for the reconciler.
type WebhookPayload struct {
	Gateway         string
	ExternalID      string
	TransactionDate time.Time
	// RawTransactionDate is set when the gateway's date could not be parsed
	// and TransactionDate fell back to the receipt time.
	RawTransactionDate string
	AccountNumber      string
	Code               string
	Content            string
	Description        string
	TransferType       string
	TransferAmount     int64
	Accumulated        int64
	ReferenceCode      string
	// Succeeded is false when the gateway reports a failed or cancelled payment.
	Succeeded bool
}

// Settleable reports whether the notification moved money in.
func (p *WebhookPayload) Settleable() bool {
	return p.Succeeded && p.TransferType == TransferIn && p.TransferAmount > 0
}

type Gateway interface {
	Name() string
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	VerifyWebhook(r *http.Request, body []byte) error
	ParseWebhook(body []byte) (*WebhookPayload, error)
}

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		if g != nil {
			r.gateways[g.Name()] = g
		}
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// wholeAmount converts a gateway amount to minor units, rejecting fractions.
func wholeAmount(d decimal.Decimal) (int64, error) {
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: fractional amount %s", ErrInvalidPayload, d.String())
	}
	return d.IntPart(), nil
}
