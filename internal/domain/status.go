package domain

import (
	"fmt"
	"sort"
)

// StatusID — идентификатор статуса заказа в таблице статусов.
type StatusID int

// Идентификаторы статусов канонической таблицы.
const (
	StatusNew       StatusID = 1  // заказ собирается, позиции и купоны можно менять
	StatusSent      StatusID = 5  // оплачен со счёта и передан в доставку
	StatusPending   StatusID = 10 // доставка приостановлена
	StatusCancelled StatusID = 20
	StatusReturned  StatusID = 30 // средства вернулись на счёт
	StatusDelivered StatusID = 40 // книги добавлены в библиотеку покупателя
	StatusCompleted StatusID = 99
)

// knownStatusNames — жёстко заданный перечень статусов, который движок ожидает увидеть в хранилище.
var knownStatusNames = map[StatusID]string{
	StatusNew:       "new",
	StatusSent:      "sent",
	StatusPending:   "pending",
	StatusCancelled: "cancelled",
	StatusReturned:  "returned",
	StatusDelivered: "delivered",
	StatusCompleted: "completed",
}

// Name возвращает каноническое имя статуса или пустую строку для неизвестного id.
func (id StatusID) Name() string {
	return knownStatusNames[id]
}

// String нужен для логов.
func (id StatusID) String() string {
	if name := id.Name(); name != "" {
		return name
	}
	return fmt.Sprintf("status(%d)", int(id))
}

// KnownStatuses возвращает перечень ожидаемых статусов (id → имя).
func KnownStatuses() map[StatusID]string {
	result := make(map[StatusID]string, len(knownStatusNames))
	for id, name := range knownStatusNames {
		result[id] = name
	}
	return result
}

// OrderStatus — узел графа переходов, хранится во внешнем хранилище.
type OrderStatus struct {
	ID                   StatusID
	Name                 string
	PossibleNextStatuses []StatusID
}

// Allows сообщает, разрешён ли переход в target из этого статуса.
func (s OrderStatus) Allows(target StatusID) bool {
	for _, next := range s.PossibleNextStatuses {
		if next == target {
			return true
		}
	}
	return false
}

// CanonicalStatuses возвращает исходную таблицу переходов, которой засевается хранилище.
func CanonicalStatuses() []OrderStatus {
	return []OrderStatus{
		{ID: StatusNew, Name: "new", PossibleNextStatuses: []StatusID{StatusSent, StatusCancelled}},
		{ID: StatusSent, Name: "sent", PossibleNextStatuses: []StatusID{StatusPending, StatusCancelled, StatusReturned, StatusDelivered}},
		{ID: StatusPending, Name: "pending", PossibleNextStatuses: []StatusID{StatusSent, StatusCancelled}},
		{ID: StatusCancelled, Name: "cancelled"},
		{ID: StatusReturned, Name: "returned"},
		{ID: StatusDelivered, Name: "delivered", PossibleNextStatuses: []StatusID{StatusCompleted, StatusReturned}},
		{ID: StatusCompleted, Name: "completed"},
	}
}

// StatusTable — загруженный граф переходов.
type StatusTable map[StatusID]OrderStatus

// NewStatusTable строит таблицу из списка статусов.
func NewStatusTable(statuses []OrderStatus) StatusTable {
	table := make(StatusTable, len(statuses))
	for _, st := range statuses {
		table[st.ID] = st
	}
	return table
}

// Verify сверяет таблицу с жёстко заданным перечнем: каждый ожидаемый статус
// должен присутствовать с тем же id и именем.
func (t StatusTable) Verify() error {
	ids := make([]int, 0, len(knownStatusNames))
	for id := range knownStatusNames {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	for _, raw := range ids {
		id := StatusID(raw)
		stored, ok := t[id]
		if !ok {
			return fmt.Errorf("%w: status %d (%s) is missing", ErrStatusTableMismatch, raw, id.Name())
		}
		if stored.Name != id.Name() {
			return fmt.Errorf("%w: status %d is named %q, expected %q", ErrStatusTableMismatch, raw, stored.Name, id.Name())
		}
	}
	return nil
}

// CanTransition проверяет ребро from → to в графе.
func (t StatusTable) CanTransition(from, to StatusID) bool {
	st, ok := t[from]
	if !ok {
		return false
	}
	return st.Allows(to)
}

// Sorted возвращает статусы в порядке возрастания id.
func (t StatusTable) Sorted() []OrderStatus {
	result := make([]OrderStatus, 0, len(t))
	for _, st := range t {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
