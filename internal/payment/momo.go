package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joshua-takyi/tourbook/internal/config"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/shopspring/decimal"
)

const GatewayMoMo = "momo"

// MoMo is the e-wallet gateway. Requests and IPN callbacks are signed with
// HMAC-SHA256 over a fixed, alphabetically ordered parameter string.
type MoMo struct {
	cfg    config.MoMoConfig
	client *http.Client
	now    func() time.Time
}

func NewMoMo(cfg config.MoMoConfig, client *http.Client) *MoMo {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &MoMo{cfg: cfg, client: client, now: time.Now}
}

func (m *MoMo) Name() string { return GatewayMoMo }

func (m *MoMo) sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(m.cfg.SecretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IpnURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink"`
	QRCodeURL    string `json:"qrCodeUrl"`
}

// createSignature builds the canonical create-payment string. Field order is
// fixed by the gateway and must not change.
func (m *MoMo) createSignature(r momoCreateRequest) string {
	raw := "accessKey=" + m.cfg.AccessKey +
		"&amount=" + strconv.FormatInt(r.Amount, 10) +
		"&extraData=" + r.ExtraData +
		"&ipnUrl=" + r.IpnURL +
		"&orderId=" + r.OrderID +
		"&orderInfo=" + r.OrderInfo +
		"&partnerCode=" + r.PartnerCode +
		"&redirectUrl=" + r.RedirectURL +
		"&requestId=" + r.RequestID +
		"&requestType=" + r.RequestType
	return m.sign(raw)
}

func (m *MoMo) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	if req.OrderCode == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("%w: order code and a positive amount are required", ErrInvalidPayload)
	}
	info := req.Description
	if info == "" {
		info = "Payment for order " + req.OrderCode
	}
	if !strings.Contains(info, req.OrderCode) {
		info += " " + req.OrderCode
	}

	body := momoCreateRequest{
		PartnerCode: m.cfg.PartnerCode,
		RequestID:   req.OrderCode + "-" + strconv.FormatInt(m.now().UnixMilli(), 10),
		Amount:      req.Amount,
		OrderID:     req.OrderCode,
		OrderInfo:   info,
		RedirectURL: m.cfg.RedirectURL,
		IpnURL:      m.cfg.IPNURL,
		RequestType: m.cfg.RequestType,
		Lang:        "vi",
	}
	body.Signature = m.createSignature(body)

	var res momoCreateResponse
	if err := m.post(ctx, m.cfg.Endpoint, body, &res); err != nil {
		return nil, err
	}
	if res.ResultCode != 0 {
		return nil, fmt.Errorf("momo rejected payment %s: %s (code %d): %w",
			req.OrderCode, res.Message, res.ResultCode, models.ErrBadRequest)
	}
	return &PaymentIntent{
		Gateway:   GatewayMoMo,
		PayURL:    res.PayURL,
		Deeplink:  res.Deeplink,
		QRCodeURL: res.QRCodeURL,
		Amount:    req.Amount,
		OrderCode: req.OrderCode,
	}, nil
}

type momoQueryRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	OrderID     string `json:"orderId"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

// TransactionStatus is the gateway's view of an order.
type TransactionStatus struct {
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
	TransID    int64  `json:"transId"`
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayType    string `json:"payType,omitempty"`
}

func (m *MoMo) queryEndpoint() string {
	if base, ok := strings.CutSuffix(m.cfg.Endpoint, "/create"); ok {
		return base + "/query"
	}
	return strings.TrimSuffix(m.cfg.Endpoint, "/") + "/query"
}

// QueryStatus asks the gateway for the current state of orderID.
func (m *MoMo) QueryStatus(ctx context.Context, orderID string) (*TransactionStatus, error) {
	req := momoQueryRequest{
		PartnerCode: m.cfg.PartnerCode,
		RequestID:   orderID + "-q" + strconv.FormatInt(m.now().UnixMilli(), 10),
		OrderID:     orderID,
		Lang:        "vi",
	}
	req.Signature = m.sign("accessKey=" + m.cfg.AccessKey +
		"&orderId=" + req.OrderID +
		"&partnerCode=" + req.PartnerCode +
		"&requestId=" + req.RequestID)

	var res TransactionStatus
	if err := m.post(ctx, m.queryEndpoint(), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (m *MoMo) post(ctx context.Context, endpoint string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode momo request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build momo request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("momo request failed: %v: %w", err, models.ErrTransientUpstream)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read momo response: %v: %w", err, models.ErrTransientUpstream)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("momo returned %d: %w", resp.StatusCode, models.ErrTransientUpstream)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode momo response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

type momoIPN struct {
	PartnerCode  string          `json:"partnerCode"`
	OrderID      string          `json:"orderId"`
	RequestID    string          `json:"requestId"`
	Amount       decimal.Decimal `json:"amount"`
	OrderInfo    string          `json:"orderInfo"`
	OrderType    string          `json:"orderType"`
	TransID      int64           `json:"transId"`
	ResultCode   int             `json:"resultCode"`
	Message      string          `json:"message"`
	PayType      string          `json:"payType"`
	ResponseTime int64           `json:"responseTime"`
	ExtraData    string          `json:"extraData"`
	Signature    string          `json:"signature"`
}

func (m *MoMo) ipnSignature(n momoIPN) string {
	raw := "accessKey=" + m.cfg.AccessKey +
		"&amount=" + n.Amount.String() +
		"&extraData=" + n.ExtraData +
		"&message=" + n.Message +
		"&orderId=" + n.OrderID +
		"&orderInfo=" + n.OrderInfo +
		"&orderType=" + n.OrderType +
		"&partnerCode=" + n.PartnerCode +
		"&payType=" + n.PayType +
		"&requestId=" + n.RequestID +
		"&responseTime=" + strconv.FormatInt(n.ResponseTime, 10) +
		"&resultCode=" + strconv.Itoa(n.ResultCode) +
		"&transId=" + strconv.FormatInt(n.TransID, 10)
	return m.sign(raw)
}

func (m *MoMo) VerifyWebhook(_ *http.Request, body []byte) error {
	var n momoIPN
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if n.PartnerCode != m.cfg.PartnerCode {
		return fmt.Errorf("%w: unexpected partner code", ErrInvalidSignature)
	}
	want, err := hex.DecodeString(m.ipnSignature(n))
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(n.Signature)
	if err != nil || !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	return nil
}

func (m *MoMo) ParseWebhook(body []byte) (*WebhookPayload, error) {
	var n momoIPN
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if n.OrderID == "" {
		return nil, fmt.Errorf("%w: missing orderId", ErrInvalidPayload)
	}
	amount, err := wholeAmount(n.Amount)
	if err != nil {
		return nil, err
	}
	txDate := m.now().UTC()
	if n.ResponseTime > 0 {
		txDate = time.UnixMilli(n.ResponseTime).UTC()
	}
	return &WebhookPayload{
		Gateway:         "MoMo",
		ExternalID:      strconv.FormatInt(n.TransID, 10),
		TransactionDate: txDate,
		AccountNumber:   n.PartnerCode,
		Code:            n.OrderID,
		Content:         n.OrderInfo,
		Description:     n.Message,
		TransferType:    TransferIn,
		TransferAmount:  amount,
		ReferenceCode:   n.RequestID,
		Succeeded:       n.ResultCode == 0,
	}, nil
}

// IsTransient reports whether err is worth retrying against the gateway.
func IsTransient(err error) bool {
	return errors.Is(err, models.ErrTransientUpstream)
}

var _ Gateway = (*MoMo)(nil)
