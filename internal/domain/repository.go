package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если ID занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя от новых к старым.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// FindByStatus возвращает самый свежий заказ пользователя в указанном статусе или ErrOrderNotFound.
	FindByStatus(ctx context.Context, userID string, status StatusID) (Order, error)
	// Save перезаписывает позиции и стоимость заказа с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
	// SaveStatus записывает только статус и отметки времени, также сверяя версию.
	SaveStatus(ctx context.Context, order Order) error
}

// StatusRepository хранит граф статусов заказа.
type StatusRepository interface {
	// List возвращает все статусы в порядке возрастания id.
	List(ctx context.Context) ([]OrderStatus, error)
	// Upsert создаёт или обновляет статус (используется при засеве).
	Upsert(ctx context.Context, status OrderStatus) error
}

// CouponRepository — справочник купонов, движок его только читает.
type CouponRepository interface {
	// Get возвращает купон по коду или ErrCouponNotFound.
	Get(ctx context.Context, code string) (Coupon, error)
	// GetMany возвращает найденные купоны по кодам, отсутствующие просто пропускаются.
	GetMany(ctx context.Context, codes []string) (map[string]Coupon, error)
	Upsert(ctx context.Context, coupon Coupon) error
	// IncrementUsage увеличивает счётчик погашений купона на единицу.
	IncrementUsage(ctx context.Context, code string) error
}

// CatalogRepository — каталог книг и складских позиций.
type CatalogRepository interface {
	// GetItem возвращает позицию по id книги или ErrItemNotFound.
	GetItem(ctx context.Context, bookID string) (Item, error)
	// GetBook возвращает книгу или ErrBookNotFound.
	GetBook(ctx context.Context, bookID string) (Book, error)
	UpsertBook(ctx context.Context, book Book) error
	UpsertItem(ctx context.Context, item Item) error
	// AdjustStock меняет остаток позиции на delta; остаток не опускается ниже нуля.
	AdjustStock(ctx context.Context, bookID string, delta int) error
}

// AccountRepository хранит аккаунты покупателей и сотрудников.
type AccountRepository interface {
	// Get возвращает аккаунт по id пользователя или ErrAccountNotFound.
	Get(ctx context.Context, userID string) (Account, error)
	Upsert(ctx context.Context, account Account) error
	// AdjustFunds меняет баланс на delta. Отрицательный итог даёт ErrInsufficientFunds.
	AdjustFunds(ctx context.Context, userID string, delta int64) (Account, error)
	// AddOwnedBook добавляет книгу в библиотеку пользователя и убирает её из списка желаний.
	// Возвращает false, если книга уже была в библиотеке.
	AddOwnedBook(ctx context.Context, userID, bookID string) (bool, error)
}

// LedgerRepository фиксирует побочные эффекты переходов для идемпотентности хуков.
type LedgerRepository interface {
	// Record сохраняет запись. Возвращает false, если запись (order_id, kind, book_id) уже есть.
	Record(ctx context.Context, entry LedgerEntry) (bool, error)
	// Get возвращает запись или ErrLedgerEntryNotFound.
	Get(ctx context.Context, orderID string, kind LedgerKind, bookID string) (LedgerEntry, error)
	// ListByOrder возвращает записи заказа в хронологическом порядке.
	ListByOrder(ctx context.Context, orderID string) ([]LedgerEntry, error)
}
