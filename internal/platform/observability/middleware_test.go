package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hossain-rashid/Smartshop/internal/platform/requestctx"
)

func TestRequestLoggerMiddlewareLogsCompletion(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(logger))
	router.Use(ClientIDMiddleware)
	router.Use(RequestLoggerMiddleware("smartshop", WithIdempotencyHeaders("Idempotency-Key", "X-Idempotent-Replay")))
	router.Post("/api/v1/checkout", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Idempotent-Replay", "true")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"insufficient_balance"}`))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set(ClientIDHeader, "kiosk-3")
	req.Header.Set("Idempotency-Key", "order-\x1b42")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 4xx, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["status"] != int64(http.StatusPaymentRequired) {
		t.Fatalf("expected status 402, got %v", fields["status"])
	}
	if fields["client_id"] != "kiosk-3" {
		t.Fatalf("expected client id kiosk-3, got %v", fields["client_id"])
	}
	if fields["route"] != "/api/v1/checkout" {
		t.Fatalf("expected route pattern, got %v", fields["route"])
	}
	if fields["area"] != AreaCheckout {
		t.Fatalf("expected checkout area, got %v", fields["area"])
	}
	if fields["idempotency_key"] != "order-42" {
		t.Fatalf("expected sanitised idempotency key, got %v", fields["idempotency_key"])
	}
	if fields["replayed"] != true {
		t.Fatalf("expected replayed response to be flagged, got %v", fields["replayed"])
	}
}

func TestRequestLoggerMiddlewareOmitsIdempotencyFieldsWithoutKey(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)))
	router.Use(RequestLoggerMiddleware("", WithIdempotencyHeaders("Idempotency-Key", "X-Idempotent-Replay")))
	router.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["area"] != AreaCart {
		t.Fatalf("expected cart area, got %v", fields["area"])
	}
	if fields["client_id"] != requestctx.AnonymousClient {
		t.Fatalf("expected anonymous client, got %v", fields["client_id"])
	}
	if _, ok := fields["idempotency_key"]; ok {
		t.Fatalf("expected no idempotency key field, got %v", fields["idempotency_key"])
	}
	if _, ok := fields["replayed"]; ok {
		t.Fatalf("expected no replayed field, got %v", fields["replayed"])
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal_server_error") {
		t.Fatalf("expected error code in body, got %s", rr.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestTraceMiddlewareContinuesCloudTrace(t *testing.T) {
	var traceID string
	handler := TraceMiddleware("smartshop")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceID = requestctx.TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(cloudTraceHeader, "4bf92f3577b34da6a3ce929d0e0e4736/1;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected trace id from header, got %q", traceID)
	}
	if !strings.HasPrefix(rr.Header().Get(cloudTraceHeader), "4bf92f3577b34da6a3ce929d0e0e4736/") {
		t.Fatalf("expected cloud trace header echoed, got %q", rr.Header().Get(cloudTraceHeader))
	}
}

func TestTraceMiddlewareContinuesW3CTraceparent(t *testing.T) {
	var traceID string
	handler := TraceMiddleware("")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceID = requestctx.TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if traceID != "0af7651916cd43dd8448eb211c80319c" {
		t.Fatalf("expected trace id from traceparent, got %q", traceID)
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)

	logEvent := EventLogger(zap.New(fallbackCore))
	logEvent(context.Background(), "catalog.refreshed", map[string]any{"products": 20})
	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	logEvent(ctx, "cart.persist_failed", map[string]any{"error": "disk full"})

	if fallbackLogs.Len() != 1 || fallbackLogs.All()[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected one info entry on fallback logger, got %v", fallbackLogs.All())
	}
	entries := requestLogs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected failure logged at error level on request logger, got %v", entries)
	}
	if entries[0].ContextMap()["event"] != "cart.persist_failed" {
		t.Fatalf("expected event field, got %v", entries[0].ContextMap())
	}
}

func TestTraceMiddlewareNamesSpanAfterRoute(t *testing.T) {
	rec := &recordingTracer{}
	previous := tracer
	tracer = rec
	t.Cleanup(func() { tracer = previous })

	router := chi.NewRouter()
	router.Use(ClientIDMiddleware)
	router.Use(TraceMiddleware("smartshop"))
	router.Route("/api/v1/catalog", func(r chi.Router) {
		r.Get("/products/{productID}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products/7", nil)
	req.Header.Set(ClientIDHeader, "kiosk-9")
	router.ServeHTTP(httptest.NewRecorder(), req)

	if len(rec.spans) != 1 {
		t.Fatalf("expected one span, got %d", len(rec.spans))
	}
	span := rec.spans[0]
	if span.name != "GET /api/v1/catalog/products/{productID}" {
		t.Fatalf("expected span named after route pattern, got %q", span.name)
	}
	if span.attrs["smartshop.area"] != AreaCatalog {
		t.Fatalf("expected catalog area attribute, got %v", span.attrs["smartshop.area"])
	}
	if span.attrs["smartshop.client_id"] != "kiosk-9" {
		t.Fatalf("expected client id attribute, got %v", span.attrs["smartshop.client_id"])
	}
	if !span.ended {
		t.Fatalf("expected span to be ended")
	}
}

func TestStorefrontArea(t *testing.T) {
	cases := map[string]string{
		"/api/v1/cart/items/{productID}": AreaCart,
		"/api/v1/checkout":               AreaCheckout,
		"/api/v1/orders/{orderID}":       AreaOrders,
		"/api/v1/reviews":                AreaReviews,
		"/healthz":                       AreaHealth,
		"/readyz":                        AreaHealth,
		"/metrics":                       AreaMetrics,
		"/":                              AreaOther,
		"/api/v1/unknown":                AreaOther,
	}
	for path, want := range cases {
		if got := StorefrontArea(path); got != want {
			t.Fatalf("StorefrontArea(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSanitizeClientID(t *testing.T) {
	if got := SanitizeClientID(" kiosk\x00-1 "); got != "kiosk-1" {
		t.Fatalf("expected control characters stripped, got %q", got)
	}
}

type recordingTracer struct {
	noop.Tracer
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	span := &recordingSpan{name: name, attrs: map[string]any{}, sc: trace.SpanContextFromContext(ctx)}
	t.spans = append(t.spans, span)
	return trace.ContextWithSpan(ctx, span), span
}

type recordingSpan struct {
	noop.Span
	name  string
	attrs map[string]any
	sc    trace.SpanContext
	ended bool
}

func (s *recordingSpan) SpanContext() trace.SpanContext { return s.sc }

func (s *recordingSpan) SetName(name string) { s.name = name }

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, attr := range kv {
		s.attrs[string(attr.Key)] = attr.Value.AsInterface()
	}
}

func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }
