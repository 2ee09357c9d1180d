package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joshua-takyi/tourbook/internal/config"
	"github.com/shopspring/decimal"
)

const (
	GatewaySePay = "sepay"

	sepayDateLayout = "2006-01-02 15:04:05"
)

// SePay reports bank times in Vietnam local time.
var sepayZone = time.FixedZone("ICT", 7*60*60)

// SePay is a bank-transfer gateway: the customer scans a VietQR image and the
// bank statement line carries the order code back to us.
type SePay struct {
	cfg config.SePayConfig
}

func NewSePay(cfg config.SePayConfig) *SePay {
	return &SePay{cfg: cfg}
}

func (s *SePay) Name() string { return GatewaySePay }

func (s *SePay) CreatePaymentIntent(_ context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	if req.OrderCode == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("%w: order code and a positive amount are required", ErrInvalidPayload)
	}
	qr := fmt.Sprintf("%s?acc=%s&bank=%s&amount=%d&des=%s",
		s.cfg.QRURL,
		url.QueryEscape(s.cfg.BankAccount),
		url.QueryEscape(s.cfg.BankName),
		req.Amount,
		url.QueryEscape(req.OrderCode),
	)

	return &PaymentIntent{
		Gateway:     GatewaySePay,
		QRCodeURL:   qr,
		BankAccount: s.cfg.BankAccount,
		BankName:    s.cfg.BankName,
		Amount:      req.Amount,
		OrderCode:   req.OrderCode,
	}, nil
}

// VerifyWebhook checks the "Authorization: Apikey <key>" header.
func (s *SePay) VerifyWebhook(r *http.Request, _ []byte) error {
	if s.cfg.WebhookAPIKey == "" {
		return fmt.Errorf("%w: webhook api key not configured", ErrInvalidSignature)
	}
	scheme, key, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Apikey") {
		return fmt.Errorf("%w: missing Apikey authorization", ErrInvalidSignature)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(key)), []byte(s.cfg.WebhookAPIKey)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

type sepayWebhook struct {
	ID              int64           `json:"id"`
	Gateway         string          `json:"gateway"`
	TransactionDate string          `json:"transactionDate"`
	AccountNumber   string          `json:"accountNumber"`
	SubAccount      *string         `json:"subAccount"`
	Code            *string         `json:"code"`
	Content         string          `json:"content"`
	TransferType    string          `json:"transferType"`
	Description     string          `json:"description"`
	TransferAmount  decimal.Decimal `json:"transferAmount"`
	Accumulated     decimal.Decimal `json:"accumulated"`
	ReferenceCode   string          `json:"referenceCode"`
}

func (s *SePay) ParseWebhook(body []byte) (*WebhookPayload, error) {
	var w sepayWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	amount, err := wholeAmount(w.TransferAmount)
	if err != nil {
		return nil, err
	}
	accumulated, err := wholeAmount(w.Accumulated)
	if err != nil {
		return nil, err
	}

	var rawDate string
	txDate, err := time.ParseInLocation(sepayDateLayout, w.TransactionDate, sepayZone)
	if err != nil {
		txDate, rawDate = time.Now(), w.TransactionDate
	}

	p := &WebhookPayload{
		Gateway:            w.Gateway,
		TransactionDate:    txDate.UTC(),
		RawTransactionDate: rawDate,
		AccountNumber:      w.AccountNumber,
		Content:            w.Content,
		Description:        w.Description,
		TransferType:       strings.ToLower(w.TransferType),
		TransferAmount:     amount,
		Accumulated:        accumulated,
		ReferenceCode:      w.ReferenceCode,
		Succeeded:          true,
	}
	if p.Gateway == "" {
		p.Gateway = GatewaySePay
	}
	if w.ID != 0 {
		p.ExternalID = strconv.FormatInt(w.ID, 10)
	}
	if w.Code != nil {
		p.Code = *w.Code
	}
	return p, nil
}

var _ Gateway = (*SePay)(nil)
