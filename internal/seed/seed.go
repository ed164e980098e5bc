// Package seed загружает справочные данные магазина (граф статусов, каталог,
// аккаунты, купоны) из YAML и записывает их в выбранное хранилище.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

//go:embed default.yaml
var defaultSeed []byte

// ErrInvalidSeed возвращается, если seed-файл не прошёл проверку.
var ErrInvalidSeed = errors.New("invalid seed")

// Document описывает seed-файл целиком.
type Document struct {
	Statuses []Status  `yaml:"statuses"`
	Books    []Book    `yaml:"books"`
	Accounts []Account `yaml:"accounts"`
	Coupons  []Coupon  `yaml:"coupons"`
}

type Status struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
	Next []int  `yaml:"next"`
}

// Book задаёт книгу вместе со складской позицией.
type Book struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Author   string `yaml:"author"`
	Price    int64  `yaml:"price"`
	Quantity int    `yaml:"quantity"`
	Inactive bool   `yaml:"inactive"`
}

type Account struct {
	UserID   string   `yaml:"user_id"`
	Funds    int64    `yaml:"funds"`
	Role     string   `yaml:"role"`
	Owned    []string `yaml:"owned"`
	Wishlist []string `yaml:"wishlist"`
}

// Coupon — правило скидки. Отсутствующий usage_limit означает «без лимита».
type Coupon struct {
	Code       string    `yaml:"code"`
	Type       string    `yaml:"type"`
	Discount   string    `yaml:"discount"`
	ValidUntil time.Time `yaml:"valid_until"`
	UsageLimit *int      `yaml:"usage_limit"`
	Used       int       `yaml:"used"`
}

var roles = map[string]domain.RoleID{
	"customer": domain.RoleCustomer,
	"employee": domain.RoleEmployee,
	"admin":    domain.RoleAdmin,
}

// Default возвращает встроенный seed.
func Default() (Document, error) {
	return Decode(bytes.NewReader(defaultSeed))
}

// LoadFile читает seed из файла; пустой путь означает встроенный seed.
func LoadFile(path string) (Document, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode разбирает и проверяет YAML-документ.
func Decode(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate проверяет ссылочную целостность документа.
func (d Document) Validate() error {
	statusIDs := make(map[int]struct{}, len(d.Statuses))
	for _, st := range d.Statuses {
		if st.ID <= 0 || strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("%w: status %d must have a positive id and a name", ErrInvalidSeed, st.ID)
		}
		if _, dup := statusIDs[st.ID]; dup {
			return fmt.Errorf("%w: duplicate status %d", ErrInvalidSeed, st.ID)
		}
		statusIDs[st.ID] = struct{}{}
	}
	for _, st := range d.Statuses {
		for _, next := range st.Next {
			if _, ok := statusIDs[next]; !ok {
				return fmt.Errorf("%w: status %d refers to unknown status %d", ErrInvalidSeed, st.ID, next)
			}
		}
	}

	books := make(map[string]struct{}, len(d.Books))
	for _, b := range d.Books {
		switch {
		case strings.TrimSpace(b.ID) == "":
			return fmt.Errorf("%w: book id is required", ErrInvalidSeed)
		case b.Price < 0 || b.Quantity < 0:
			return fmt.Errorf("%w: book %s has negative price or quantity", ErrInvalidSeed, b.ID)
		}
		if _, dup := books[b.ID]; dup {
			return fmt.Errorf("%w: duplicate book %s", ErrInvalidSeed, b.ID)
		}
		books[b.ID] = struct{}{}
	}

	for _, a := range d.Accounts {
		if strings.TrimSpace(a.UserID) == "" {
			return fmt.Errorf("%w: account user_id is required", ErrInvalidSeed)
		}
		if _, ok := roles[roleName(a.Role)]; !ok {
			return fmt.Errorf("%w: account %s has unknown role %q", ErrInvalidSeed, a.UserID, a.Role)
		}
		for _, id := range append(append([]string(nil), a.Owned...), a.Wishlist...) {
			if _, ok := books[id]; !ok {
				return fmt.Errorf("%w: account %s refers to unknown book %s", ErrInvalidSeed, a.UserID, id)
			}
		}
	}

	for _, c := range d.Coupons {
		if _, err := c.toDomain(); err != nil {
			return err
		}
	}
	return nil
}

func roleName(role string) string {
	if role == "" {
		return "customer"
	}
	return strings.ToLower(strings.TrimSpace(role))
}

func (c Coupon) toDomain() (domain.Coupon, error) {
	code := strings.TrimSpace(c.Code)
	if code == "" || code == "shipping" || code == "books" {
		return domain.Coupon{}, fmt.Errorf("%w: coupon code %q is not allowed", ErrInvalidSeed, c.Code)
	}
	kind := domain.CouponType(strings.ToLower(c.Type))
	if !kind.Valid() {
		return domain.Coupon{}, fmt.Errorf("%w: coupon %s has unknown type %q", ErrInvalidSeed, code, c.Type)
	}
	discount, err := decimal.NewFromString(c.Discount)
	if err != nil || discount.IsNegative() {
		return domain.Coupon{}, fmt.Errorf("%w: coupon %s has invalid discount %q", ErrInvalidSeed, code, c.Discount)
	}
	if c.ValidUntil.IsZero() {
		return domain.Coupon{}, fmt.Errorf("%w: coupon %s has no valid_until", ErrInvalidSeed, code)
	}

	limit := -1
	if c.UsageLimit != nil {
		limit = *c.UsageLimit
	}
	return domain.Coupon{
		Code:       code,
		Type:       kind,
		Discount:   discount,
		ValidUntil: c.ValidUntil.UTC(),
		UsageLimit: limit,
		Used:       c.Used,
	}, nil
}

// OrderStatuses переводит граф статусов в доменные типы.
func (d Document) OrderStatuses() []domain.OrderStatus {
	result := make([]domain.OrderStatus, 0, len(d.Statuses))
	for _, st := range d.Statuses {
		next := make([]domain.StatusID, 0, len(st.Next))
		for _, id := range st.Next {
			next = append(next, domain.StatusID(id))
		}
		result = append(result, domain.OrderStatus{ID: domain.StatusID(st.ID), Name: st.Name, PossibleNextStatuses: next})
	}
	return result
}

// Repositories перечисляет хранилища, в которые пишется seed.
type Repositories struct {
	Statuses domain.StatusRepository
	Catalog  domain.CatalogRepository
	Accounts domain.AccountRepository
	Coupons  domain.CouponRepository
}

// Summary — число записанных объектов.
type Summary struct {
	Statuses int
	Books    int
	Accounts int
	Coupons  int
}

// Apply записывает документ в хранилища. Операция идемпотентна.
//
// Статусы пишутся в два прохода: сначала узлы без рёбер, затем с рёбрами,
// чтобы рёбра не ссылались на ещё не созданные статусы.
func Apply(ctx context.Context, repos Repositories, doc Document, logger *log.Entry) (Summary, error) {
	if logger == nil {
		logger = log.New().WithField("component", "seed")
	}
	var summary Summary

	if repos.Statuses != nil {
		statuses := doc.OrderStatuses()
		for _, st := range statuses {
			if err := repos.Statuses.Upsert(ctx, domain.OrderStatus{ID: st.ID, Name: st.Name}); err != nil {
				return summary, fmt.Errorf("seed status %d: %w", st.ID, err)
			}
		}
		for _, st := range statuses {
			if err := repos.Statuses.Upsert(ctx, st); err != nil {
				return summary, fmt.Errorf("seed status %d transitions: %w", st.ID, err)
			}
		}
		summary.Statuses = len(statuses)
	}

	if repos.Catalog != nil {
		for _, b := range doc.Books {
			if err := repos.Catalog.UpsertBook(ctx, domain.Book{ID: b.ID, Title: b.Title, Author: b.Author}); err != nil {
				return summary, fmt.Errorf("seed book %s: %w", b.ID, err)
			}
			item := domain.Item{BookID: b.ID, Price: b.Price, Quantity: b.Quantity, Inactive: b.Inactive}
			if err := repos.Catalog.UpsertItem(ctx, item); err != nil {
				return summary, fmt.Errorf("seed item %s: %w", b.ID, err)
			}
			summary.Books++
		}
	}

	if repos.Accounts != nil {
		for _, a := range doc.Accounts {
			account := domain.Account{
				UserID:          a.UserID,
				Funds:           a.Funds,
				RoleID:          roles[roleName(a.Role)],
				OwnedBookIDs:    append([]string(nil), a.Owned...),
				WishlistBookIDs: append([]string(nil), a.Wishlist...),
			}
			if err := repos.Accounts.Upsert(ctx, account); err != nil {
				return summary, fmt.Errorf("seed account %s: %w", a.UserID, err)
			}
			summary.Accounts++
		}
	}

	if repos.Coupons != nil {
		for _, c := range doc.Coupons {
			coupon, err := c.toDomain()
			if err != nil {
				return summary, err
			}
			if err := repos.Coupons.Upsert(ctx, coupon); err != nil {
				return summary, fmt.Errorf("seed coupon %s: %w", coupon.Code, err)
			}
			summary.Coupons++
		}
	}

	logger.WithFields(log.Fields{
		"statuses": summary.Statuses,
		"books":    summary.Books,
		"accounts": summary.Accounts,
		"coupons":  summary.Coupons,
	}).Info("seed applied")
	return summary, nil
}
