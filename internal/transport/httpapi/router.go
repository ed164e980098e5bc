// Package httpapi — JSON HTTP API магазина поверх движка заказов.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

// Options — зависимости роутера помимо движка.
type Options struct {
	Auth *Authenticator
	// Idempotency опционален; без него заголовок Idempotency-Key игнорируется.
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	TracerProvider trace.TracerProvider
	Logger         *log.Entry
	Now            func() time.Time
}

// NewRouter собирает таблицу маршрутов.
func NewRouter(engine OrderEngine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	auth := opts.Auth
	if auth == nil {
		auth = NewAuthenticator("")
	}

	h := &handler{engine: engine, logger: logger}
	idem := &idempotency{repo: opts.Idempotency, ttl: ttl, now: now, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing(opts.TracerProvider))
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/book-shop-order-statuses", h.listStatuses)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(logger))

		r.Route("/book-shop-orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)

			r.Group(func(r chi.Router) {
				r.Use(idem.middleware)
				r.Post("/", h.createOrder)
				r.Post("/items", h.addItem)
				r.Delete("/items", h.removeItem)
				r.Post("/coupon", h.applyCoupon)
				r.Patch("/{id}", h.transition)
			})
		})

		r.With(idem.middleware).Patch("/admin/book-shop-orders/{id}", h.adminTransition)
	})

	return r
}
