// Package orders реализует жизненный цикл заказа книжного магазина: создание,
// позиции, купоны и переходы статусов по таблице из хранилища.
package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/metrics"
	"github.com/vladislavdragonenkov/bookshop/internal/service/coupon"
)

const tracerName = "github.com/vladislavdragonenkov/bookshop/internal/service/orders"

// Dependencies — хранилища и коллабораторы движка.
type Dependencies struct {
	Orders   domain.OrderRepository
	Statuses domain.StatusRepository
	Coupons  domain.CouponRepository
	Catalog  domain.CatalogRepository
	Accounts domain.AccountRepository
	Hooks    domain.OrderHooks
	// Timeline и Outbox опциональны.
	Timeline domain.TimelineRepository
	Outbox   domain.OutboxRepository
}

// Option настраивает Engine.
type Option func(*Engine)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics включает Prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithTracer задаёт OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// Engine — движок жизненного цикла заказов.
type Engine struct {
	orders    domain.OrderRepository
	statuses  domain.StatusRepository
	catalog   domain.CatalogRepository
	accounts  domain.AccountRepository
	hooks     domain.OrderHooks
	timeline  domain.TimelineRepository
	outbox    domain.OutboxRepository
	validator *coupon.Validator

	logger  *log.Entry
	metrics *metrics.OrderMetrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
	locks   *userLocks

	bootOnce sync.Once
	bootErr  error
	table    domain.StatusTable
}

// NewEngine собирает движок. Таблица статусов проверяется при первом обращении
// или явным вызовом Bootstrap.
func NewEngine(deps Dependencies, opts ...Option) *Engine {
	e := &Engine{
		orders:   deps.Orders,
		statuses: deps.Statuses,
		catalog:  deps.Catalog,
		accounts: deps.Accounts,
		hooks:    deps.Hooks,
		timeline: deps.Timeline,
		outbox:   deps.Outbox,
		logger:   log.New().WithField("component", "orders"),
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		locks:    newUserLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.validator = coupon.NewValidator(deps.Coupons, e.logger.WithField("component", "coupon-validator"))
	return e
}

// startOp открывает span операции и возвращает функцию, которая закрывает его
// и учитывает результат в метриках.
func (e *Engine) startOp(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "orders."+name, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if e.metrics != nil {
			e.metrics.RecordOperation(name, resultOf(err), time.Since(started))
		}
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrUnprocessable),
		errors.Is(err, domain.ErrUnauthorized):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}

// caller проверяет идентичность вызывающего и загружает его аккаунт.
func (e *Engine) caller(ctx context.Context, userID string) (domain.Account, error) {
	if userID == "" {
		return domain.Account{}, domain.ErrCallerRequired
	}
	return e.accounts.Get(ctx, userID)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
