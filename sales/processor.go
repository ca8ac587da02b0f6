/*
processor.go - Payment creation

PURPOSE:
  Turns an untrusted PaymentRequest into exactly one persisted Payment, or
  into a classified error with nothing persisted.

REQUEST FLOW:
  1. Parse price text                  → validation "wrong value as price"
  2. Look up the method's RateEntry    → validation "invalid payment method"
  3. Check modifier ∈ [min, max]        → validation naming the bounds
  4. finalPrice = price × modifier, points = floor(price × pointRate)
  5. SavePayment with bounded retry    → operational on exhaustion

  The first failing step wins. Validation failures never reach the store.

SEE ALSO:
  - rates.go: RateTable
  - retry.go: Bounded retry
  - money.go: Formatting and truncation
*/
package sales

import (
	"context"
)

const opCreatePayment = "createPayment"

// Processor validates and persists payments. Safe for concurrent use.
type Processor struct {
	store Store
	rates *RateTable
	opts  options
}

func NewProcessor(store Store, rates *RateTable, opts ...Option) *Processor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Processor{store: store, rates: rates, opts: o}
}

// CreatePayment validates req, persists the derived Payment and returns the
// formatted final price and earned points.
func (p *Processor) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	log := p.opts.requestLogger(ctx).With().
		Str("op", opCreatePayment).
		Str("payment_method", string(req.PaymentMethod)).
		Logger()

	payment, verr := p.prepare(req)
	if verr != nil {
		log.Warn().Str("reason", verr.Message).Msg("payment rejected")
		p.opts.observer.Rejected(opCreatePayment, KindValidation)
		return PaymentResponse{}, verr
	}

	saved, err := retry(ctx, p.opts.retry, "save_payment", p.opts.observer, log, func(ctx context.Context) (Payment, error) {
		return p.store.SavePayment(ctx, payment)
	})
	if err != nil {
		log.Error().Err(err).Msg("Error saving payment request")
		p.opts.observer.Rejected(opCreatePayment, KindOperational)
		return PaymentResponse{}, operational(err)
	}

	p.opts.observer.PaymentCreated(saved.PaymentMethod)
	log.Info().Int64("payment_id", saved.ID).Int64("points", saved.Points).Msg("payment created")

	return PaymentResponse{
		FinalPrice: FormatAmount(saved.Price),
		Points:     saved.Points,
	}, nil
}

// prepare runs the validation sequence and computes the row to persist.
func (p *Processor) prepare(req PaymentRequest) (Payment, *Error) {
	price, err := ParsePrice(req.Price)
	if err != nil {
		return Payment{}, Classify(err)
	}

	entry, ok := p.rates.Lookup(req.PaymentMethod)
	if !ok {
		return Payment{}, invalidInput("Invalid payment method in request or invalid config")
	}

	if !entry.Allows(req.PriceModifier) {
		return Payment{}, invalidInput("priceModifier can not be less than %s and more than %s",
			formatConfigured(entry.ModifierMin), formatConfigured(entry.ModifierMax))
	}

	if !StorableTime(req.OccurredAt) {
		return Payment{}, invalidInput("datetime year %d is outside %d-%d",
			req.OccurredAt.UTC().Year(), minStorableYear, maxStorableYear)
	}

	return Payment{
		Price:         price.Mul(req.PriceModifier),
		PriceModifier: req.PriceModifier,
		Points:        TruncatePoints(price, entry.PointRate),
		PaymentMethod: req.PaymentMethod,
		OccurredAt:    req.OccurredAt.UTC(),
		CreatedAt:     p.opts.now().UTC(),
	}, nil
}
