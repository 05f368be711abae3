package domain

import "time"

// Storefront constants shared by the balance, pricing and checkout flows.
const (
	StartingBalance Money = 1000_00
	TopUpAmount     Money = 1000_00
	DeliveryFee     Money = 50_00
	ShippingFee     Money = 10_00

	CouponSmart10        = "SMART10"
	CouponSmart10Percent = 10

	// CategoryAll is the catalog filter value that matches every category.
	CategoryAll = "All"

	// OrderDateLayout is the UTC ISO-8601 layout used for order dates.
	OrderDateLayout = "2006-01-02T15:04:05.000Z"
)

// Rating summarises product feedback from the catalog source.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Product is a catalog entry.
type Product struct {
	ID          int    `json:"id" validate:"required,gt=0"`
	Title       string `json:"title" validate:"required"`
	Price       Money  `json:"price" validate:"gte=0"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Image       string `json:"image"`
	Rating      Rating `json:"rating"`
}

// Review is a customer testimonial shown alongside the catalog.
type Review struct {
	Name    string  `json:"name" validate:"required"`
	Rating  float64 `json:"rating" validate:"gte=0,lte=5"`
	Comment string  `json:"comment"`
	Date    string  `json:"date"`
}

// LineItem is one product entry in the cart.
type LineItem struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Price    Money  `json:"price"`
	Quantity int    `json:"quantity"`
	Image    string `json:"image"`
}

// Amount returns price multiplied by quantity.
func (i LineItem) Amount() Money {
	return i.Price * Money(i.Quantity)
}

// CartState is the persisted cart: items in insertion order plus the active coupon.
type CartState struct {
	Items      []LineItem `json:"cartItems"`
	CouponCode string     `json:"couponCode"`
}

// Clone deep copies the cart state.
func (c CartState) Clone() CartState {
	return CartState{
		Items:      CloneLineItems(c.Items),
		CouponCode: c.CouponCode,
	}
}

// ItemCount is the sum of quantities across line items.
func (c CartState) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// IsEmpty reports whether the cart has no line items.
func (c CartState) IsEmpty() bool {
	return len(c.Items) == 0
}

// CloneLineItems returns an independent copy of items.
func CloneLineItems(items []LineItem) []LineItem {
	if len(items) == 0 {
		return []LineItem{}
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// TotalsBreakdown is derived from the cart and never stored on its own.
type TotalsBreakdown struct {
	Subtotal Money `json:"subtotal"`
	Delivery Money `json:"delivery"`
	Shipping Money `json:"shipping"`
	Discount Money `json:"discount"`
	Total    Money `json:"total"`
}

// Charges returns delivery plus shipping.
func (t TotalsBreakdown) Charges() Money {
	return t.Delivery + t.Shipping
}

// CartSummary is the view a renderer needs after every mutation.
type CartSummary struct {
	Items       []LineItem      `json:"items"`
	CouponCode  string          `json:"couponCode"`
	ItemCount   int             `json:"itemCount"`
	Totals      TotalsBreakdown `json:"totals"`
	Balance     Money           `json:"balance"`
	OverBalance bool            `json:"overBalance"`
}

// OrderRecord is an immutable snapshot of a completed purchase.
type OrderRecord struct {
	OrderID int64           `json:"orderId"`
	Date    string          `json:"date"`
	Items   []LineItem      `json:"items"`
	Totals  TotalsBreakdown `json:"totals"`
}

// CloneOrderRecords deep copies a history slice.
func CloneOrderRecords(records []OrderRecord) []OrderRecord {
	if len(records) == 0 {
		return []OrderRecord{}
	}
	out := make([]OrderRecord, len(records))
	for i, record := range records {
		out[i] = record
		out[i].Items = CloneLineItems(record.Items)
	}
	return out
}

// CheckoutReceipt reports the outcome of a successful checkout.
type CheckoutReceipt struct {
	Order      OrderRecord `json:"order"`
	AmountPaid Money       `json:"amountPaid"`
	NewBalance Money       `json:"newBalance"`
	Message    string      `json:"message"`
}

// FormatOrderDate renders ts in the order history layout.
func FormatOrderDate(ts time.Time) string {
	return ts.UTC().Format(OrderDateLayout)
}
