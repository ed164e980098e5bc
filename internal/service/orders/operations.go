package orders

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookshop/internal/service/pricing"
)

// Create открывает пустой заказ в статусе new. У пользователя может быть только один такой заказ.
func (e *Engine) Create(ctx context.Context, userID string) (order domain.Order, err error) {
	ctx, finish := e.startOp(ctx, "create_order", attribute.String("user_id", userID))
	defer finish(&err)

	if _, err = e.statusTable(ctx); err != nil {
		return domain.Order{}, err
	}
	if _, err = e.caller(ctx, userID); err != nil {
		return domain.Order{}, err
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	if err = e.ensureNoNewOrder(ctx, userID); err != nil {
		return domain.Order{}, err
	}

	order = domain.NewOrder(e.newID(), userID, e.now())
	if err = e.orders.Create(ctx, order); err != nil {
		return domain.Order{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordOrderCreated()
	}
	e.record(ctx, change{eventType: kafka.EventTypeOrderCreated, order: order})

	e.logger.WithFields(log.Fields{"order_id": order.ID, "user_id": userID}).Info("order created")
	return order, nil
}

// AddItem добавляет книгу в заказ пользователя в статусе new, создавая заказ при его отсутствии.
// Второе значение сообщает, был ли заказ создан этим вызовом.
func (e *Engine) AddItem(ctx context.Context, userID, bookID string) (order domain.Order, created bool, err error) {
	ctx, finish := e.startOp(ctx, "add_item", attribute.String("user_id", userID), attribute.String("book_id", bookID))
	defer finish(&err)

	if _, err = e.statusTable(ctx); err != nil {
		return domain.Order{}, false, err
	}
	if _, err = e.caller(ctx, userID); err != nil {
		return domain.Order{}, false, err
	}
	if bookID == "" {
		return domain.Order{}, false, domain.ErrInvalidBookID
	}

	item, err := e.catalog.GetItem(ctx, bookID)
	if err != nil {
		return domain.Order{}, false, err
	}
	book, err := e.catalog.GetBook(ctx, bookID)
	if err != nil {
		return domain.Order{}, false, err
	}
	if item.Inactive {
		return domain.Order{}, false, fmt.Errorf("%w: %s", domain.ErrBooksUnavailable, book.Title)
	}
	if item.Quantity <= 0 {
		return domain.Order{}, false, fmt.Errorf("%w: %s", domain.ErrOutOfStock, book.Title)
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	current, err := e.orders.FindByStatus(ctx, userID, domain.StatusNew)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		current = domain.NewOrder(e.newID(), userID, e.now())
		created = true
	case err != nil:
		return domain.Order{}, false, err
	case current.HasBook(bookID):
		return domain.Order{}, false, fmt.Errorf("%w: %s", domain.ErrBookAlreadyInOrder, book.Title)
	}

	current.AddBook(bookID, item.Price)
	current.UpdatedAt = e.now()
	order, err = e.recompute(ctx, current)
	if err != nil {
		return domain.Order{}, false, err
	}

	if created {
		if err = e.orders.Create(ctx, order); err != nil {
			return domain.Order{}, false, err
		}
		if e.metrics != nil {
			e.metrics.RecordOrderCreated()
		}
		e.record(ctx, change{eventType: kafka.EventTypeOrderCreated, order: order})
	} else {
		if err = e.orders.Save(ctx, order); err != nil {
			return domain.Order{}, false, err
		}
		order.Version++
	}
	e.record(ctx, change{
		eventType: kafka.EventTypeOrderItemAdded,
		order:     order,
		reason:    bookID,
		metadata:  map[string]interface{}{"book_id": bookID, "price": item.Price},
	})
	return order, created, nil
}

// RemoveItem убирает книгу из заказа пользователя в статусе new.
func (e *Engine) RemoveItem(ctx context.Context, userID, bookID string) (order domain.Order, err error) {
	ctx, finish := e.startOp(ctx, "remove_item", attribute.String("user_id", userID), attribute.String("book_id", bookID))
	defer finish(&err)

	if _, err = e.statusTable(ctx); err != nil {
		return domain.Order{}, err
	}
	if _, err = e.caller(ctx, userID); err != nil {
		return domain.Order{}, err
	}
	if bookID == "" {
		return domain.Order{}, domain.ErrInvalidBookID
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	current, err := e.orders.FindByStatus(ctx, userID, domain.StatusNew)
	if err != nil {
		return domain.Order{}, err
	}
	if !current.RemoveBook(bookID) {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrBookNotInOrder, bookID)
	}
	current.UpdatedAt = e.now()

	order, err = e.recompute(ctx, current)
	if err != nil {
		return domain.Order{}, err
	}
	if err = e.orders.Save(ctx, order); err != nil {
		return domain.Order{}, err
	}
	order.Version++

	e.record(ctx, change{
		eventType: kafka.EventTypeOrderItemRemoved,
		order:     order,
		reason:    bookID,
		metadata:  map[string]interface{}{"book_id": bookID},
	})
	return order, nil
}

// ApplyCoupon применяет купон к самому свежему заказу пользователя, если тот в статусе new.
func (e *Engine) ApplyCoupon(ctx context.Context, userID, code string) (order domain.Order, err error) {
	ctx, finish := e.startOp(ctx, "apply_coupon", attribute.String("user_id", userID), attribute.String("coupon_code", code))
	defer finish(&err)

	if _, err = e.statusTable(ctx); err != nil {
		return domain.Order{}, err
	}
	if _, err = e.caller(ctx, userID); err != nil {
		return domain.Order{}, err
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	list, err := e.orders.ListByUser(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(list) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	current := list[0]
	if current.StatusID != domain.StatusNew {
		return domain.Order{}, fmt.Errorf("%w: latest order %s is %s", domain.ErrOrderNotNew, current.ID, current.StatusID.Name())
	}
	if len(current.BookIDs) == 0 {
		return domain.Order{}, domain.ErrEmptyOrder
	}

	if _, err = e.validator.ValidateForOrder(ctx, current, code, e.now()); err != nil {
		return domain.Order{}, err
	}

	if current.PartialCosts == nil {
		current.PartialCosts = map[string]int64{}
	}
	current.PartialCosts[code] = 0
	current.UpdatedAt = e.now()
	order, err = e.recompute(ctx, current)
	if err != nil {
		return domain.Order{}, err
	}
	if err = e.orders.Save(ctx, order); err != nil {
		return domain.Order{}, err
	}
	order.Version++

	if e.metrics != nil {
		e.metrics.RecordCouponApplied()
	}
	e.record(ctx, change{
		eventType: kafka.EventTypeOrderCouponApplied,
		order:     order,
		reason:    code,
		metadata:  map[string]interface{}{"coupon_code": code, "discount": order.PartialCosts[code]},
	})
	return order, nil
}

// List возвращает заказы пользователя от новых к старым.
func (e *Engine) List(ctx context.Context, userID string) (orders []domain.Order, err error) {
	ctx, finish := e.startOp(ctx, "list_orders", attribute.String("user_id", userID))
	defer finish(&err)

	if _, err = e.statusTable(ctx); err != nil {
		return nil, err
	}
	if _, err = e.caller(ctx, userID); err != nil {
		return nil, err
	}
	return e.orders.ListByUser(ctx, userID)
}

// Get возвращает заказ владельцу или сотруднику магазина.
func (e *Engine) Get(ctx context.Context, userID, orderID string) (order domain.Order, err error) {
	ctx, finish := e.startOp(ctx, "get_order", attribute.String("user_id", userID), attribute.String("order_id", orderID))
	defer finish(&err)

	if _, err = e.statusTable(ctx); err != nil {
		return domain.Order{}, err
	}
	return e.visibleOrder(ctx, userID, orderID)
}

// Timeline возвращает историю заказа тем же, кому доступен сам заказ.
func (e *Engine) Timeline(ctx context.Context, userID, orderID string) (events []domain.TimelineEvent, err error) {
	ctx, finish := e.startOp(ctx, "order_timeline", attribute.String("order_id", orderID))
	defer finish(&err)

	if _, err = e.visibleOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	if e.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return e.timeline.List(ctx, orderID)
}

func (e *Engine) visibleOrder(ctx context.Context, userID, orderID string) (domain.Order, error) {
	account, err := e.caller(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != userID && !account.RoleID.IsStaff() {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (e *Engine) ensureNoNewOrder(ctx context.Context, userID string) error {
	existing, err := e.orders.FindByStatus(ctx, userID, domain.StatusNew)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", domain.ErrActiveOrderExists, existing.ID)
	case errors.Is(err, domain.ErrOrderNotFound):
		return nil
	default:
		return err
	}
}

// recompute пересчитывает стоимость заказа. Купоны, ставшие недействительными,
// обнуляются и попадают в лог.
func (e *Engine) recompute(ctx context.Context, order domain.Order) (domain.Order, error) {
	coupons, err := e.validator.Lookup(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}
	res := pricing.ComputeCosts(order, coupons, e.now())
	if len(res.Neutralized) > 0 {
		e.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"coupons":  res.Neutralized,
		}).Warn("coupons neutralized during recomputation")
		if e.metrics != nil {
			e.metrics.RecordCouponsNeutralized(len(res.Neutralized))
		}
	}
	return res.Order, nil
}
