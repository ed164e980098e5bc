package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/metrics"
	"github.com/vladislavdragonenkov/bookshop/internal/seed"
	"github.com/vladislavdragonenkov/bookshop/internal/service/ledger"
	"github.com/vladislavdragonenkov/bookshop/internal/service/orders"
	"github.com/vladislavdragonenkov/bookshop/internal/storage/memory"
)

const testSecret = "test-secret"

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type RouterSuite struct {
	suite.Suite

	router   http.Handler
	auth     *Authenticator
	accounts domain.AccountRepository
	idem     *memory.IdempotencyRepository
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	clock := func() time.Time { return testNow }

	statuses := memory.NewStatusRepository()
	catalog := memory.NewCatalogRepository()
	s.accounts = memory.NewAccountRepository()
	coupons := memory.NewCouponRepository()

	doc, err := seed.Default()
	s.Require().NoError(err)
	_, err = seed.Apply(ctx, seed.Repositories{Statuses: statuses, Catalog: catalog, Accounts: s.accounts, Coupons: coupons}, doc, nil)
	s.Require().NoError(err)

	logger := log.New().WithField("component", "test")
	m := metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())
	engine := orders.NewEngine(orders.Dependencies{
		Orders:   memory.NewOrderRepository(),
		Statuses: statuses,
		Coupons:  coupons,
		Catalog:  catalog,
		Accounts: s.accounts,
		Hooks:    ledger.NewHooks(s.accounts, catalog, memory.NewLedgerRepository(), logger, ledger.WithClock(clock)),
		Timeline: memory.NewTimelineRepository(),
		Outbox:   memory.NewOutboxRepository(),
	}, orders.WithClock(clock), orders.WithLogger(logger), orders.WithMetrics(m))

	s.auth = NewAuthenticator(testSecret)
	s.idem = memory.NewIdempotencyRepository().WithClock(clock)
	s.router = NewRouter(engine, Options{
		Auth:        s.auth,
		Idempotency: s.idem,
		Logger:      logger,
		Now:         clock,
	})
}

type response struct {
	code    int
	header  http.Header
	raw     []byte
	payload map[string]any
}

func (s *RouterSuite) call(method, path, user string, body any, headers ...string) response {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := s.auth.Issue(user, time.Hour)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	res := response{code: w.Code, header: w.Header(), raw: w.Body.Bytes()}
	if len(res.raw) > 0 && res.raw[0] == '{' {
		s.Require().NoError(json.Unmarshal(res.raw, &res.payload))
	}
	return res
}

func (s *RouterSuite) total(res response) int64 {
	return int64(res.payload["total_cost"].(float64))
}

func (s *RouterSuite) TestUnauthorized() {
	res := s.call(http.MethodGet, "/book-shop-orders", "", nil)
	s.Equal(http.StatusUnauthorized, res.code)
	s.Equal("unauthorized", res.payload["error"])

	foreign, err := NewAuthenticator("other-secret").Issue("alice", time.Hour)
	s.Require().NoError(err)
	res = s.call(http.MethodGet, "/book-shop-orders", "", nil, "Authorization", "Bearer "+foreign)
	s.Equal(http.StatusUnauthorized, res.code)
}

func (s *RouterSuite) TestUnknownAccountIsNotFound() {
	res := s.call(http.MethodPost, "/book-shop-orders", "ghost", nil)
	s.Equal(http.StatusNotFound, res.code)
}

func (s *RouterSuite) TestCreateOrderOnce() {
	res := s.call(http.MethodPost, "/book-shop-orders", "alice", nil)
	s.Require().Equal(http.StatusOK, res.code)
	s.Equal(float64(domain.StatusNew), res.payload["status_id"])
	s.Equal("new", res.payload["status"])

	res = s.call(http.MethodPost, "/book-shop-orders", "alice", nil)
	s.Equal(http.StatusConflict, res.code)
	s.Equal("conflict", res.payload["error"])
}

func (s *RouterSuite) TestItemsAndCoupon() {
	res := s.call(http.MethodPost, "/book-shop-orders/items", "alice", map[string]string{"book_id": "dune"})
	s.Require().Equal(http.StatusOK, res.code)
	s.Equal(true, res.payload["created"])
	s.Equal(int64(3000), s.total(res))

	res = s.call(http.MethodPost, "/book-shop-orders/items", "alice", map[string]string{"book_id": "solaris"})
	s.Require().Equal(http.StatusOK, res.code)
	s.Equal(false, res.payload["created"])
	s.Equal(int64(5750), s.total(res))

	s.Equal(http.StatusConflict, s.call(http.MethodPost, "/book-shop-orders/items", "alice", map[string]string{"book_id": "dune"}).code)
	s.Equal(http.StatusConflict, s.call(http.MethodPost, "/book-shop-orders/items", "alice", map[string]string{"book_id": "neuromancer"}).code)
	s.Equal(http.StatusConflict, s.call(http.MethodPost, "/book-shop-orders/items", "alice", map[string]string{"book_id": "roadside-picnic"}).code)
	s.Equal(http.StatusNotFound, s.call(http.MethodPost, "/book-shop-orders/items", "alice", map[string]string{"book_id": "missing"}).code)
	s.Equal(http.StatusBadRequest, s.call(http.MethodPost, "/book-shop-orders/items", "alice", "{not json").code)

	res = s.call(http.MethodPost, "/book-shop-orders/coupon", "alice", map[string]string{"coupon_code": "SAVE10"})
	s.Require().Equal(http.StatusOK, res.code)
	s.Equal(int64(5175), s.total(res))

	s.Equal(http.StatusConflict, s.call(http.MethodPost, "/book-shop-orders/coupon", "alice", map[string]string{"coupon_code": "SAVE10"}).code)
	s.Equal(http.StatusConflict, s.call(http.MethodPost, "/book-shop-orders/coupon", "alice", map[string]string{"coupon_code": "SPRING2024"}).code)
	s.Equal(http.StatusNotFound, s.call(http.MethodPost, "/book-shop-orders/coupon", "alice", map[string]string{"coupon_code": "NOPE"}).code)

	res = s.call(http.MethodDelete, "/book-shop-orders/items", "alice", map[string]string{"book_id": "solaris"})
	s.Require().Equal(http.StatusOK, res.code)
	s.Equal(int64(2700), s.total(res))

	s.Equal(http.StatusNotFound, s.call(http.MethodDelete, "/book-shop-orders/items", "alice", map[string]string{"book_id": "solaris"}).code)
}

func (s *RouterSuite) TestCouponWithoutOrders() {
	res := s.call(http.MethodPost, "/book-shop-orders/coupon", "alice", map[string]string{"coupon_code": "SAVE10"})
	s.Equal(http.StatusNotFound, res.code)
}

func (s *RouterSuite) TestCustomerTransition() {
	res := s.call(http.MethodPost, "/book-shop-orders/items", "alice", map[string]string{"book_id": "dune"})
	s.Require().Equal(http.StatusOK, res.code)
	orderID := res.payload["id"].(string)

	res = s.call(http.MethodPatch, "/book-shop-orders/"+orderID, "alice", map[string]int{"status_id": int(domain.StatusCompleted)})
	s.Equal(http.StatusConflict, res.code)

	res = s.call(http.MethodPatch, "/book-shop-orders/"+orderID, "alice", map[string]int{"status_id": 0})
	s.Equal(http.StatusUnprocessableEntity, res.code)

	for _, raw := range []string{`{"status_id":"5"}`, `{"status_id":5.5}`, `{"status_id":true}`} {
		res = s.call(http.MethodPatch, "/book-shop-orders/"+orderID, "alice", raw)
		s.Equal(http.StatusUnprocessableEntity, res.code, raw)
		s.Equal("unprocessable", res.payload["error"], raw)
	}
	s.Equal(http.StatusBadRequest, s.call(http.MethodPatch, "/book-shop-orders/"+orderID, "alice", `{"status_id":`).code)

	res = s.call(http.MethodPatch, "/book-shop-orders/"+orderID, "alice", map[string]int{"status_id": int(domain.StatusSent)})
	s.Require().Equal(http.StatusOK, res.code)
	s.Equal(float64(domain.StatusSent), res.payload["status_id"])
	s.Contains(res.payload, "sent_at")

	account, err := s.accounts.Get(context.Background(), "alice")
	s.Require().NoError(err)
	s.Equal(int64(100000-3000), account.Funds)

	res = s.call(http.MethodPatch, "/book-shop-orders/"+orderID, "alice", map[string]int{"status_id": int(domain.StatusDelivered)})
	s.Equal(http.StatusNotFound, res.code)
}

func (s *RouterSuite) TestInsufficientFunds() {
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/book-shop-orders/items", "bob", map[string]string{"book_id": "dune"}).code)
	res := s.call(http.MethodPost, "/book-shop-orders/items", "bob", map[string]string{"book_id": "solaris"})
	s.Require().Equal(http.StatusOK, res.code)

	res = s.call(http.MethodPatch, "/book-shop-orders/"+res.payload["id"].(string), "bob", map[string]int{"status_id": int(domain.StatusSent)})
	s.Equal(http.StatusUnprocessableEntity, res.code)
	s.Equal("unprocessable", res.payload["error"])
}

func (s *RouterSuite) TestAdminTransitionAndVisibility() {
	res := s.call(http.MethodPost, "/book-shop-orders/items", "alice", map[string]string{"book_id": "dune"})
	s.Require().Equal(http.StatusOK, res.code)
	orderID := res.payload["id"].(string)
	s.Require().Equal(http.StatusOK, s.call(http.MethodPatch, "/book-shop-orders/"+orderID, "alice", map[string]int{"status_id": int(domain.StatusSent)}).code)

	path := "/admin/book-shop-orders/" + orderID
	s.Equal(http.StatusNotFound, s.call(http.MethodPatch, path, "alice", map[string]int{"status_id": int(domain.StatusDelivered)}).code)
	s.Equal(http.StatusConflict, s.call(http.MethodPatch, path, "clerk", map[string]int{"status_id": int(domain.StatusCompleted)}).code)

	res = s.call(http.MethodPatch, path, "clerk", map[string]int{"status_id": int(domain.StatusDelivered)})
	s.Require().Equal(http.StatusOK, res.code)
	s.Contains(res.payload, "delivered_at")

	account, err := s.accounts.Get(context.Background(), "alice")
	s.Require().NoError(err)
	s.Contains(account.OwnedBookIDs, "dune")

	res = s.call(http.MethodPatch, path, "root", map[string]int{"status_id": int(domain.StatusPending)})
	s.Require().Equal(http.StatusOK, res.code)
	s.NotContains(res.payload, "pending_at")

	s.Equal(http.StatusNotFound, s.call(http.MethodGet, "/book-shop-orders/"+orderID, "bob", nil).code)

	res = s.call(http.MethodGet, "/book-shop-orders/"+orderID, "clerk", nil)
	s.Require().Equal(http.StatusOK, res.code)
	timeline := res.payload["timeline"].([]any)
	s.Len(timeline, 5)

	var list []map[string]any
	listRes := s.call(http.MethodGet, "/book-shop-orders", "alice", nil)
	s.Require().Equal(http.StatusOK, listRes.code)
	s.Require().NoError(json.Unmarshal(listRes.raw, &list))
	s.Len(list, 1)
}

func (s *RouterSuite) TestStatusesArePublic() {
	res := s.call(http.MethodGet, "/book-shop-order-statuses", "", nil)
	s.Require().Equal(http.StatusOK, res.code)

	var statuses []statusResponse
	s.Require().NoError(json.Unmarshal(res.raw, &statuses))
	s.Require().Len(statuses, 7)
	s.Equal("new", statuses[0].Name)
	s.ElementsMatch([]int{5, 20}, statuses[0].PossibleNextStatuses)
}

func (s *RouterSuite) TestIdempotentReplay() {
	body := map[string]string{"book_id": "dune"}
	first := s.call(http.MethodPost, "/book-shop-orders/items", "alice", body, IdempotencyKeyHeader, "k-1")
	s.Require().Equal(http.StatusOK, first.code)

	second := s.call(http.MethodPost, "/book-shop-orders/items", "alice", body, IdempotencyKeyHeader, "k-1")
	s.Equal(http.StatusOK, second.code)
	s.Equal("true", second.header.Get("Idempotent-Replayed"))
	s.JSONEq(string(first.raw), string(second.raw))

	mismatch := s.call(http.MethodPost, "/book-shop-orders/items", "alice", map[string]string{"book_id": "solaris"}, IdempotencyKeyHeader, "k-1")
	s.Equal(http.StatusConflict, mismatch.code)

	// тот же ключ другого пользователя: независимый запрос
	other := s.call(http.MethodPost, "/book-shop-orders/items", "bob", body, IdempotencyKeyHeader, "k-1")
	s.Equal(http.StatusOK, other.code)
	s.Empty(other.header.Get("Idempotent-Replayed"))
}

func (s *RouterSuite) TestIdempotentFailureReplay() {
	body := map[string]string{"book_id": "missing"}
	first := s.call(http.MethodPost, "/book-shop-orders/items", "alice", body, IdempotencyKeyHeader, "k-2")
	s.Require().Equal(http.StatusNotFound, first.code)

	record, err := s.idem.Get(context.Background(), "alice:k-2")
	s.Require().NoError(err)
	s.Equal(domain.IdempotencyStatusFailed, record.Status)

	second := s.call(http.MethodPost, "/book-shop-orders/items", "alice", body, IdempotencyKeyHeader, "k-2")
	s.Equal(http.StatusNotFound, second.code)
	s.JSONEq(string(first.raw), string(second.raw))
}

func TestRouter_StatusTableMismatchIsInternal(t *testing.T) {
	ctx := context.Background()
	accounts := memory.NewAccountRepository()
	if err := accounts.Upsert(ctx, domain.Account{UserID: "alice", RoleID: domain.RoleCustomer}); err != nil {
		t.Fatal(err)
	}
	catalog := memory.NewCatalogRepository()
	engine := orders.NewEngine(orders.Dependencies{
		Orders:   memory.NewOrderRepository(),
		Statuses: memory.NewStatusRepository(),
		Coupons:  memory.NewCouponRepository(),
		Catalog:  catalog,
		Accounts: accounts,
		Hooks:    ledger.NewHooks(accounts, catalog, memory.NewLedgerRepository(), nil),
	})

	auth := NewAuthenticator(testSecret)
	router := NewRouter(engine, Options{Auth: auth})
	token, err := auth.Issue("alice", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/book-shop-orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "status_table_mismatch" {
		t.Fatalf("unexpected error code %q", body.Error)
	}
}

// flakyOrders отказывает в первых failures вызовах Create.
type flakyOrders struct {
	domain.OrderRepository

	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyOrders) Create(ctx context.Context, order domain.Order) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return f.OrderRepository.Create(ctx, order)
}

func TestRouter_ServerErrorReleasesIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	statuses := memory.NewStatusRepository()
	catalog := memory.NewCatalogRepository()
	accounts := memory.NewAccountRepository()
	coupons := memory.NewCouponRepository()
	doc, err := seed.Default()
	require.NoError(t, err)
	_, err = seed.Apply(ctx, seed.Repositories{Statuses: statuses, Catalog: catalog, Accounts: accounts, Coupons: coupons}, doc, nil)
	require.NoError(t, err)

	ordersRepo := &flakyOrders{OrderRepository: memory.NewOrderRepository(), failures: 1}
	engine := orders.NewEngine(orders.Dependencies{
		Orders:   ordersRepo,
		Statuses: statuses,
		Coupons:  coupons,
		Catalog:  catalog,
		Accounts: accounts,
		Hooks:    ledger.NewHooks(accounts, catalog, memory.NewLedgerRepository(), nil),
	})
	idem := memory.NewIdempotencyRepository()
	auth := NewAuthenticator(testSecret)
	router := NewRouter(engine, Options{Auth: auth, Idempotency: idem})
	token, err := auth.Issue("alice", time.Minute)
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/book-shop-orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(IdempotencyKeyHeader, "retry-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := send()
	require.Equal(t, http.StatusInternalServerError, first.Code)
	_, err = idem.Get(ctx, "alice:retry-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	second := send()
	require.Equal(t, http.StatusOK, second.Code)
	require.Empty(t, second.Header().Get("Idempotent-Replayed"))
	require.Equal(t, 2, ordersRepo.calls)

	third := send()
	require.Equal(t, http.StatusOK, third.Code)
	require.Equal(t, "true", third.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, second.Body.String(), third.Body.String())
	require.Equal(t, 2, ordersRepo.calls)
}
