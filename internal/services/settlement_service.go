package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/tourbook/internal/cache"
	"github.com/joshua-takyi/tourbook/internal/config"
	"github.com/joshua-takyi/tourbook/internal/events"
	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/metrics"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/payment"
)

// Settlement outcomes. Every one of them is acknowledged to the gateway
// with a 2xx; only ErrFatal asks for a redelivery.
const (
	OutcomeSettled         = "settled"
	OutcomeSettledMismatch = "settled_amount_mismatch"
	OutcomeAmountMismatch  = "amount_mismatch"
	OutcomeUnmatched       = "unmatched"
	OutcomeNotFound        = "booking_not_found"
	OutcomeAlreadyPaid     = "already_paid"
	OutcomeNotPayable      = "not_payable"
	OutcomeIgnored         = "ignored"
)

type SettlementResult struct {
	Outcome     string
	Message     string
	Transaction *models.Transaction
	Booking     *models.Booking
}

type SettlementService struct {
	bookings     models.BookingRepo
	transactions models.TransactionRepo
	tx           models.TxRunner
	ledger       *CapacityLedger
	locker       cache.Locker
	publisher    events.Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	cfg          config.SettlementConfig
	now          func() time.Time
}

type SettlementDeps struct {
	Bookings     models.BookingRepo
	Transactions models.TransactionRepo
	Tx           models.TxRunner
	Ledger       *CapacityLedger
	Locker       cache.Locker
	Publisher    events.Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Config       config.SettlementConfig
}

func NewSettlementService(d SettlementDeps) *SettlementService {
	if d.Locker == nil {
		d.Locker = cache.NewLocalLocker()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Config.MismatchPolicy == "" {
		d.Config.MismatchPolicy = config.MismatchAccept
	}
	if d.Config.LockTTL <= 0 {
		d.Config.LockTTL = 15 * time.Second
	}
	return &SettlementService{
		bookings:     d.Bookings,
		transactions: d.Transactions,
		tx:           d.Tx,
		ledger:       d.Ledger,
		locker:       d.Locker,
		publisher:    d.Publisher,
		metrics:      d.Metrics,
		logger:       d.Logger,
		cfg:          d.Config,
		now:          time.Now,
	}
}

// HandleWebhook records the notification and, when it pays an Unpaid
// booking, marks it Paid and commits its seats. Redelivery of the same
// payment is harmless: the second attempt finds the booking already Paid.
func (ss *SettlementService) HandleWebhook(ctx context.Context, p *payment.WebhookPayload) (*SettlementResult, error) {
	start := ss.now()
	res, err := ss.settle(ctx, p)
	outcome := "error"
	if res != nil {
		outcome = res.Outcome
	}
	ss.metrics.ObserveSettlement(p.Gateway, outcome, ss.now().Sub(start))
	return res, err
}

func (ss *SettlementService) settle(ctx context.Context, p *payment.WebhookPayload) (*SettlementResult, error) {
	orderCode := helpers.ExtractOrderCode(p.Code, p.Content, p.Description)
	record := &models.Transaction{
		Gateway:            p.Gateway,
		ExternalID:         p.ExternalID,
		TransactionDate:    p.TransactionDate,
		RawTransactionDate: p.RawTransactionDate,
		AccountNumber:      p.AccountNumber,
		Accumulated:        p.Accumulated,
		OrderCode:          p.Code,
		MatchedOrderCode:   orderCode,
		TransactionContent: firstNonEmpty(p.Content, p.Description),
		ReferenceCode:      p.ReferenceCode,
	}
	if p.TransferType == payment.TransferOut {
		record.AmountOut = p.TransferAmount
	} else {
		record.AmountIn = p.TransferAmount
	}
	if !p.Succeeded {
		record.Note = "Payment not completed at gateway"
	}

	txRecord, err := ss.transactions.CreateTransaction(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("recording transaction: %v: %w", err, models.ErrFatal)
	}
	res := &SettlementResult{Transaction: txRecord}
	log := ss.logger.With("gateway", p.Gateway, "transaction_id", txRecord.ID.Hex(), "order_code", orderCode)
	if p.RawTransactionDate != "" {
		log.Warn("Unparseable transaction date, recorded receipt time instead", "raw_date", p.RawTransactionDate)
	}

	if !p.Settleable() {
		res.Outcome, res.Message = OutcomeIgnored, "Notification recorded, nothing to settle"
		log.Info("Webhook ignored", "transfer_type", p.TransferType, "succeeded", p.Succeeded, "amount", p.TransferAmount)
		return res, nil
	}
	if orderCode == "" {
		res.Outcome, res.Message = OutcomeUnmatched, models.ErrUnmatched.Error()
		log.Warn("Webhook without order code", "code", p.Code, "content", record.TransactionContent)
		return res, nil
	}

	booking, err := ss.bookings.GetBookingByOrderCode(ctx, orderCode)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			res.Outcome, res.Message = OutcomeNotFound, "No booking for order code "+orderCode
			log.Warn("Webhook for unknown booking")
			return res, nil
		}
		return res, fmt.Errorf("loading booking %s: %v: %w", orderCode, err, models.ErrFatal)
	}

	lockCtx, cancel := context.WithTimeout(ctx, ss.cfg.LockTTL)
	unlock, err := ss.locker.Lock(lockCtx, orderCode)
	cancel()
	if err != nil {
		return res, fmt.Errorf("locking order %s: %v: %w", orderCode, err, models.ErrFatal)
	}
	defer unlock()

	// Read again under the lock; a concurrent delivery may have won.
	booking, err = ss.bookings.GetBookingByID(ctx, booking.ID)
	if err != nil {
		return res, fmt.Errorf("reloading booking %s: %v: %w", orderCode, err, models.ErrFatal)
	}
	res.Booking = booking

	switch booking.PaymentStatus {
	case models.PaymentPaid:
		res.Outcome, res.Message = OutcomeAlreadyPaid, "Booking already paid"
		log.Info("Duplicate payment notification")
		return res, nil
	case models.PaymentCancelled, models.PaymentRefunded:
		res.Outcome, res.Message = OutcomeNotPayable, "Booking is "+booking.PaymentStatus
		log.Warn("Payment for closed booking", "status", booking.PaymentStatus, "amount", p.TransferAmount)
		return res, nil
	}

	mismatch := p.TransferAmount != booking.Amount
	if mismatch {
		note := fmt.Sprintf("Amount mismatch - Expected: %d, Received: %d", booking.Amount, p.TransferAmount)
		if err := ss.transactions.AppendTransactionNote(ctx, txRecord.ID, note); err != nil {
			return res, fmt.Errorf("annotating transaction: %v: %w", err, models.ErrFatal)
		}
		txRecord.Note = note
		log.Warn("Payment amount mismatch", "expected", booking.Amount, "received", p.TransferAmount, "policy", ss.cfg.MismatchPolicy)
		if ss.cfg.MismatchPolicy == config.MismatchReject {
			res.Outcome, res.Message = OutcomeAmountMismatch, note
			return res, nil
		}
	}

	paidAt := ss.now().UTC()
	err = inTx(ctx, ss.tx, func(ctx context.Context) error {
		if _, err := ss.ledger.Increment(ctx, booking.Tour, booking.StartDate, booking.Participants); err != nil {
			return err
		}
		won, err := ss.bookings.MarkPaid(ctx, booking.ID, paidAt)
		if err == nil && !won {
			err = models.ErrAlreadySettled
		}
		if err != nil {
			if _, derr := ss.ledger.Decrement(ctx, booking.Tour, booking.StartDate, booking.Participants); derr != nil {
				log.Error("Failed to revert seats after lost settlement", "error", derr)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrAlreadySettled) {
			res.Outcome, res.Message = OutcomeAlreadyPaid, "Booking already paid"
			log.Info("Settlement lost to a concurrent delivery")
			return res, nil
		}
		return res, fmt.Errorf("settling booking %s: %v: %w", orderCode, err, models.ErrFatal)
	}

	booking.PaymentStatus = models.PaymentPaid
	booking.PaymentTime = &paidAt
	res.Booking = booking
	res.Outcome, res.Message = OutcomeSettled, "Payment confirmed"
	if mismatch {
		res.Outcome, res.Message = OutcomeSettledMismatch, txRecord.Note
	}
	log.Info("Booking settled", "booking_id", booking.ID.Hex(), "amount", p.TransferAmount, "participants", booking.Participants)

	ss.publish(ctx, log, events.BookingPaidEvent{
		BookingID:      booking.ID,
		OrderCode:      booking.OrderCode,
		UserID:         booking.User,
		TourID:         booking.Tour,
		Amount:         booking.Amount,
		AmountReceived: p.TransferAmount,
		Participants:   booking.Participants,
		StartDate:      booking.StartDate,
		PaidAt:         paidAt,
		Gateway:        p.Gateway,
	})
	return res, nil
}

func (ss *SettlementService) publish(ctx context.Context, log *slog.Logger, ev events.BookingPaidEvent) {
	if ss.publisher == nil {
		return
	}
	if err := ss.publisher.PublishBookingPaid(ctx, ev); err != nil {
		log.Warn("Failed to publish booking paid event", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
