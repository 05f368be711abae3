package services

import (
	"errors"
	"fmt"
	"math"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
)

var (
	// ErrPricingInvalidInput signals negative prices or non-positive quantities.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingOverflow is returned when the subtotal cannot be represented.
	ErrPricingOverflow = errors.New("pricing: amount overflow")
)

// PricingEngine derives the totals breakdown from a cart. It holds no mutable state. SMART10 is the
// only coupon it recognises.
type PricingEngine struct {
	delivery Money
	shipping Money
}

// PricingEngineDeps configures the engine. Zero values select the storefront defaults.
type PricingEngineDeps struct {
	Delivery Money
	Shipping Money
}

// NewPricingEngine constructs a PricingEngine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Delivery < 0 || deps.Shipping < 0 {
		return nil, errors.New("pricing engine: charges must not be negative")
	}
	delivery := deps.Delivery
	if delivery == 0 {
		delivery = domain.DeliveryFee
	}
	shipping := deps.Shipping
	if shipping == 0 {
		shipping = domain.ShippingFee
	}
	return &PricingEngine{delivery: delivery, shipping: shipping}, nil
}

// IsValidCoupon reports whether code is SMART10. The code must already be normalised.
func (e *PricingEngine) IsValidCoupon(code string) bool {
	return code == domain.CouponSmart10
}

// Calculate returns the totals for cart. Charges and discounts apply only when the subtotal is positive.
func (e *PricingEngine) Calculate(cart CartState) TotalsBreakdown {
	var subtotal Money
	for _, item := range cart.Items {
		subtotal += item.Amount()
	}
	return e.breakdown(subtotal, cart.CouponCode)
}

// CalculateChecked validates the cart lines before pricing, rejecting negative prices, empty
// quantities and subtotals that overflow.
func (e *PricingEngine) CalculateChecked(cart CartState) (TotalsBreakdown, error) {
	var subtotal Money
	for _, item := range cart.Items {
		if item.Price < 0 || item.Quantity < 1 {
			return TotalsBreakdown{}, fmt.Errorf("%w: item %d", ErrPricingInvalidInput, item.ID)
		}
		if item.Price > 0 && Money(item.Quantity) > Money(math.MaxInt64)/item.Price {
			return TotalsBreakdown{}, fmt.Errorf("%w: item %d", ErrPricingOverflow, item.ID)
		}
		amount := item.Amount()
		if subtotal > Money(math.MaxInt64)-amount-e.delivery-e.shipping {
			return TotalsBreakdown{}, ErrPricingOverflow
		}
		subtotal += amount
	}
	return e.breakdown(subtotal, cart.CouponCode), nil
}

func (e *PricingEngine) breakdown(subtotal Money, coupon string) TotalsBreakdown {
	totals := TotalsBreakdown{Subtotal: subtotal}
	if subtotal <= 0 {
		totals.Total = subtotal
		return totals
	}
	if e.IsValidCoupon(coupon) {
		totals.Discount = subtotal.Percent(domain.CouponSmart10Percent)
	}
	totals.Delivery = e.delivery
	totals.Shipping = e.shipping
	totals.Total = subtotal + totals.Charges() - totals.Discount
	return totals
}
