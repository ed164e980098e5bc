package domain

import "time"

// LedgerKind — тип побочного эффекта перехода.
type LedgerKind string

const (
	// LedgerDebit — списание стоимости заказа при отправке.
	LedgerDebit LedgerKind = "debit"
	// LedgerRefund — возврат средств при возврате заказа.
	LedgerRefund LedgerKind = "refund"
	// LedgerOwnership — книга добавлена в библиотеку при доставке.
	LedgerOwnership LedgerKind = "ownership"
	// LedgerRedemption — купон заказа погашен (BookID хранит код купона).
	LedgerRedemption LedgerKind = "redemption"
)

// LedgerEntry — запись журнала побочных эффектов.
type LedgerEntry struct {
	OrderID    string
	Kind       LedgerKind
	UserID     string
	BookID     string
	Amount     int64
	RecordedAt time.Time
}
