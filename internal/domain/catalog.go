package domain

// Book — запись каталога.
type Book struct {
	ID     string
	Title  string
	Author string
}

// Item — складская позиция книги: цена, остаток и флаг активности.
type Item struct {
	BookID   string
	Price    int64
	Quantity int
	Inactive bool
}

// Available сообщает, что позицию можно продать прямо сейчас.
func (i Item) Available() bool {
	return !i.Inactive && i.Quantity > 0
}
