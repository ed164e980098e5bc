package domain

import (
	"errors"
	"fmt"
)

// Классы ошибок. Конкретные ошибки оборачивают один из них, транспорт
// определяет код ответа через errors.Is.
var (
	// ErrNotFound — отсутствует заказ, позиция, книга, купон, аккаунт или статус.
	ErrNotFound = errors.New("not found")
	// ErrConflict — нарушение бизнес-правила: недопустимый переход, нет стока, повтор купона и т.п.
	ErrConflict = errors.New("conflict")
	// ErrUnprocessable — нехватка средств, пустой заказ, некорректные числовые поля.
	ErrUnprocessable = errors.New("unprocessable")
	// ErrUnauthorized — вызывающий не идентифицирован.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStatusTableMismatch — таблица статусов в хранилище не совпадает с ожидаемой (фатально).
	ErrStatusTableMismatch = errors.New("order status table mismatch")
)

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отрицательного итога заказа.
	ErrTotalNegative = errors.New("total_cost must be non-negative")
	// Ошибка повторяющейся книги в book_ids.
	ErrDuplicateBook = errors.New("book_ids must not contain duplicates")
	// Ошибка рассинхронизации book_ids и books_cost.
	ErrBooksCostMismatch = errors.New("book_ids and books_cost keys differ")
	// Ошибка несоответствия итога сумме слагаемых.
	ErrTotalMismatch = errors.New("total_cost does not match partial costs")
)

var (
	ErrOrderNotFound   = fmt.Errorf("%w: order", ErrNotFound)
	ErrAccountNotFound = fmt.Errorf("%w: book-shop account", ErrNotFound)
	ErrItemNotFound    = fmt.Errorf("%w: item", ErrNotFound)
	ErrBookNotFound    = fmt.Errorf("%w: book", ErrNotFound)
	ErrCouponNotFound  = fmt.Errorf("%w: coupon", ErrNotFound)
	ErrStatusNotFound  = fmt.Errorf("%w: order status", ErrNotFound)
	ErrBookNotInOrder  = fmt.Errorf("%w: book is not in the order", ErrNotFound)
	// ErrLedgerEntryNotFound — для заказа нет записи о списании/возврате.
	ErrLedgerEntryNotFound = fmt.Errorf("%w: ledger entry", ErrNotFound)

	ErrActiveOrderExists    = fmt.Errorf("%w: user already has an order in status new", ErrConflict)
	ErrOutOfStock           = fmt.Errorf("%w: item is out of stock", ErrConflict)
	ErrBookAlreadyInOrder   = fmt.Errorf("%w: book is already in the order", ErrConflict)
	ErrOrderNotNew          = fmt.Errorf("%w: order is not in status new", ErrConflict)
	ErrCouponExpired        = fmt.Errorf("%w: coupon has expired", ErrConflict)
	ErrCouponLimitReached   = fmt.Errorf("%w: coupon usage limit reached", ErrConflict)
	ErrCouponAlreadyApplied = fmt.Errorf("%w: coupon is already applied to the order", ErrConflict)
	ErrTransitionNotAllowed = fmt.Errorf("%w: status transition is not allowed", ErrConflict)
	ErrBooksUnavailable     = fmt.Errorf("%w: books are unavailable", ErrConflict)
	ErrOrderVersionConflict = fmt.Errorf("%w: order version conflict", ErrConflict)
	ErrOrderAlreadyExists   = fmt.Errorf("%w: order already exists", ErrConflict)

	ErrEmptyOrder        = fmt.Errorf("%w: order has no books", ErrUnprocessable)
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrUnprocessable)
	ErrInvalidStatusID   = fmt.Errorf("%w: status_id must be a positive integer", ErrUnprocessable)
	ErrInvalidBookID     = fmt.Errorf("%w: book_id is required", ErrUnprocessable)
	ErrInvalidCouponCode = fmt.Errorf("%w: coupon_code is required", ErrUnprocessable)

	ErrCallerRequired = fmt.Errorf("%w: caller identity is required", ErrUnauthorized)
)

// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
var ErrOutboxPublish = errors.New("outbox publish failed")

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsFatal сообщает об ошибке конфигурации, после которой запрос обрабатывать нельзя.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStatusTableMismatch)
}
