package domain

// RoleID — роль владельца аккаунта магазина.
type RoleID int

const (
	RoleCustomer RoleID = 1
	RoleEmployee RoleID = 2
	RoleAdmin    RoleID = 3
)

// IsStaff сообщает, что роль относится к сотрудникам магазина.
func (r RoleID) IsStaff() bool {
	return r == RoleEmployee || r == RoleAdmin
}

// Account — коммерческий профиль пользователя платформы.
type Account struct {
	UserID          string
	Funds           int64
	RoleID          RoleID
	OwnedBookIDs    []string
	WishlistBookIDs []string
}

// Owns проверяет, есть ли книга в библиотеке пользователя.
func (a Account) Owns(bookID string) bool {
	for _, id := range a.OwnedBookIDs {
		if id == bookID {
			return true
		}
	}
	return false
}

// Clone копирует слайсы аккаунта.
func (a Account) Clone() Account {
	dst := a
	dst.OwnedBookIDs = append([]string(nil), a.OwnedBookIDs...)
	dst.WishlistBookIDs = append([]string(nil), a.WishlistBookIDs...)
	return dst
}
