// Package metrics exposes storefront counters and gauges for Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hossain-rashid/Smartshop/internal/services"
)

type Registry struct {
	reg *prometheus.Registry

	StateChanges     *prometheus.CounterVec
	OrdersPlaced     prometheus.Counter
	Revenue          prometheus.Counter
	CheckoutFailures *prometheus.CounterVec
	CartItems        prometheus.Gauge
	CartTotal        prometheus.Gauge
	Balance          prometheus.Gauge
	CatalogProducts  prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	stateChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartshop_state_changes_total",
		Help: "Committed cart and balance mutations by kind.",
	}, []string{"kind"})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{Name: "smartshop_orders_placed_total"})
	revenue := prometheus.NewCounter(prometheus.CounterOpts{Name: "smartshop_revenue_total"})
	checkoutFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartshop_checkout_failures_total",
	}, []string{"reason"})
	cartItems := prometheus.NewGauge(prometheus.GaugeOpts{Name: "smartshop_cart_items"})
	cartTotal := prometheus.NewGauge(prometheus.GaugeOpts{Name: "smartshop_cart_total"})
	balance := prometheus.NewGauge(prometheus.GaugeOpts{Name: "smartshop_balance"})
	catalogProducts := prometheus.NewGauge(prometheus.GaugeOpts{Name: "smartshop_catalog_products"})

	r.MustRegister(
		stateChanges, ordersPlaced, revenue, checkoutFailures, cartItems, cartTotal, balance, catalogProducts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		reg:              r,
		StateChanges:     stateChanges,
		OrdersPlaced:     ordersPlaced,
		Revenue:          revenue,
		CheckoutFailures: checkoutFailures,
		CartItems:        cartItems,
		CartTotal:        cartTotal,
		Balance:          balance,
		CatalogProducts:  catalogProducts,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Observer updates the gauges from every state change. Order placements also bump the order
// counter and revenue by the debited amount.
func (r *Registry) Observer() services.Observer {
	return services.ObserverFunc(func(_ context.Context, change services.StateChange) {
		r.StateChanges.WithLabelValues(string(change.Kind)).Inc()
		r.CartItems.Set(float64(change.Summary.ItemCount))
		r.CartTotal.Set(change.Summary.Totals.Total.Decimal().InexactFloat64())
		r.Balance.Set(change.Summary.Balance.Decimal().InexactFloat64())
	})
}

// RecordOrder counts a completed checkout.
func (r *Registry) RecordOrder(receipt services.CheckoutReceipt) {
	r.OrdersPlaced.Inc()
	r.Revenue.Add(receipt.AmountPaid.Decimal().InexactFloat64())
}

// RecordCheckoutFailure counts a rejected checkout by reason code.
func (r *Registry) RecordCheckoutFailure(reason string) {
	r.CheckoutFailures.WithLabelValues(reason).Inc()
}

// RecordCatalog sets the catalog size after a refresh.
func (r *Registry) RecordCatalog(refresh services.CatalogRefresh) {
	r.CatalogProducts.Set(float64(refresh.Products))
}
