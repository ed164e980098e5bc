package domain

import "time"

const (
	// CostShipping — ключ стоимости доставки в PartialCosts.
	CostShipping = "shipping"
	// CostBooks — ключ суммы по книгам в PartialCosts.
	CostBooks = "books"
)

// IsCouponCostKey сообщает, что ключ PartialCosts относится к купону.
func IsCouponCostKey(key string) bool {
	return key != CostShipping && key != CostBooks
}

// Order агрегирует состояние заказа книжного магазина.
type Order struct {
	ID       string
	UserID   string
	StatusID StatusID
	// BookIDs хранит порядок добавления книг, дубликаты запрещены.
	BookIDs []string
	// BooksCost фиксирует цену книги на момент добавления в заказ.
	BooksCost map[string]int64
	// PartialCosts — именованные слагаемые итога: shipping, books и коды купонов (<= 0).
	PartialCosts map[string]int64
	TotalCost    int64
	Version      int64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	SentAt      *time.Time
	CancelledAt *time.Time
	ReturnedAt  *time.Time
	DeliveredAt *time.Time
	CompletedAt *time.Time
}

// NewOrder создаёт пустой заказ в статусе new.
func NewOrder(id, userID string, now time.Time) Order {
	return Order{
		ID:           id,
		UserID:       userID,
		StatusID:     StatusNew,
		BookIDs:      []string{},
		BooksCost:    map[string]int64{},
		PartialCosts: map[string]int64{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone возвращает глубокую копию, чтобы хранилища и вызывающие не делили слайсы и map.
func (o Order) Clone() Order {
	dst := o
	dst.BookIDs = append([]string(nil), o.BookIDs...)
	if dst.BookIDs == nil {
		dst.BookIDs = []string{}
	}
	dst.BooksCost = make(map[string]int64, len(o.BooksCost))
	for k, v := range o.BooksCost {
		dst.BooksCost[k] = v
	}
	dst.PartialCosts = make(map[string]int64, len(o.PartialCosts))
	for k, v := range o.PartialCosts {
		dst.PartialCosts[k] = v
	}
	dst.SentAt = cloneTime(o.SentAt)
	dst.CancelledAt = cloneTime(o.CancelledAt)
	dst.ReturnedAt = cloneTime(o.ReturnedAt)
	dst.DeliveredAt = cloneTime(o.DeliveredAt)
	dst.CompletedAt = cloneTime(o.CompletedAt)
	return dst
}

// HasBook проверяет наличие книги в заказе.
func (o Order) HasBook(bookID string) bool {
	_, ok := o.BooksCost[bookID]
	return ok
}

// HasCoupon проверяет, применён ли купон к заказу.
func (o Order) HasCoupon(code string) bool {
	if !IsCouponCostKey(code) {
		return false
	}
	_, ok := o.PartialCosts[code]
	return ok
}

// CouponCodes возвращает коды применённых купонов.
func (o Order) CouponCodes() []string {
	codes := make([]string, 0, len(o.PartialCosts))
	for key := range o.PartialCosts {
		if IsCouponCostKey(key) {
			codes = append(codes, key)
		}
	}
	return codes
}

// NeutralizedCouponCodes возвращает коды купонов, скидка которых при пересчёте обнулена.
func (o Order) NeutralizedCouponCodes() []string {
	var codes []string
	for key, cost := range o.PartialCosts {
		if IsCouponCostKey(key) && cost == 0 {
			codes = append(codes, key)
		}
	}
	return codes
}

// AddBook добавляет книгу с зафиксированной ценой.
func (o *Order) AddBook(bookID string, price int64) {
	if o.BooksCost == nil {
		o.BooksCost = map[string]int64{}
	}
	o.BookIDs = append(o.BookIDs, bookID)
	o.BooksCost[bookID] = price
}

// RemoveBook удаляет книгу и её цену. Возвращает false, если книги не было.
func (o *Order) RemoveBook(bookID string) bool {
	if !o.HasBook(bookID) {
		return false
	}
	delete(o.BooksCost, bookID)
	kept := o.BookIDs[:0]
	for _, id := range o.BookIDs {
		if id != bookID {
			kept = append(kept, id)
		}
	}
	o.BookIDs = kept
	return true
}

// Stamp проставляет отметку времени, соответствующую достигнутому статусу.
// Возвращает имя поля для частичной записи или пустую строку, если у статуса нет отметки.
func (o *Order) Stamp(status StatusID, at time.Time) string {
	t := at
	switch status {
	case StatusSent:
		o.SentAt = &t
		return "sent_at"
	case StatusCancelled:
		o.CancelledAt = &t
		return "cancelled_at"
	case StatusReturned:
		o.ReturnedAt = &t
		return "returned_at"
	case StatusDelivered:
		o.DeliveredAt = &t
		return "delivered_at"
	case StatusCompleted:
		o.CompletedAt = &t
		return "completed_at"
	default:
		return ""
	}
}

// StampFor возвращает отметку времени статуса, если она есть.
func (o Order) StampFor(status StatusID) *time.Time {
	switch status {
	case StatusSent:
		return o.SentAt
	case StatusCancelled:
		return o.CancelledAt
	case StatusReturned:
		return o.ReturnedAt
	case StatusDelivered:
		return o.DeliveredAt
	case StatusCompleted:
		return o.CompletedAt
	default:
		return nil
	}
}

// ValidateInvariants проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.TotalCost < 0 {
		errs = append(errs, ErrTotalNegative)
	}

	// book_ids и ключи books_cost должны совпадать один к одному.
	seen := make(map[string]struct{}, len(o.BookIDs))
	for _, id := range o.BookIDs {
		if _, dup := seen[id]; dup {
			errs = append(errs, ErrDuplicateBook)
			break
		}
		seen[id] = struct{}{}
	}
	if len(seen) != len(o.BooksCost) {
		errs = append(errs, ErrBooksCostMismatch)
	} else {
		for id := range o.BooksCost {
			if _, ok := seen[id]; !ok {
				errs = append(errs, ErrBooksCostMismatch)
				break
			}
		}
	}

	var sum int64
	for _, v := range o.PartialCosts {
		sum += v
	}
	if sum < 0 {
		sum = 0
	}
	if sum != o.TotalCost {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
