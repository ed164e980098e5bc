package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

type accountRepositoryInMemory struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

// NewAccountRepository создаёт in-memory хранилище аккаунтов магазина.
func NewAccountRepository() domain.AccountRepository {
	return &accountRepositoryInMemory{accounts: make(map[string]domain.Account)}
}

func (r *accountRepositoryInMemory) Get(_ context.Context, userID string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[userID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (r *accountRepositoryInMemory) Upsert(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[account.UserID] = account.Clone()
	return nil
}

func (r *accountRepositoryInMemory) AdjustFunds(_ context.Context, userID string, delta int64) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[userID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if acc.Funds+delta < 0 {
		return domain.Account{}, fmt.Errorf("%w: balance %d, requested %d", domain.ErrInsufficientFunds, acc.Funds, -delta)
	}
	acc.Funds += delta
	r.accounts[userID] = acc
	return acc.Clone(), nil
}

func (r *accountRepositoryInMemory) AddOwnedBook(_ context.Context, userID, bookID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[userID]
	if !ok {
		return false, domain.ErrAccountNotFound
	}
	if acc.Owns(bookID) {
		return false, nil
	}
	acc = acc.Clone()
	acc.OwnedBookIDs = append(acc.OwnedBookIDs, bookID)
	wishlist := acc.WishlistBookIDs[:0]
	for _, id := range acc.WishlistBookIDs {
		if id != bookID {
			wishlist = append(wishlist, id)
		}
	}
	acc.WishlistBookIDs = wishlist
	r.accounts[userID] = acc
	return true, nil
}

var _ domain.AccountRepository = (*accountRepositoryInMemory)(nil)
