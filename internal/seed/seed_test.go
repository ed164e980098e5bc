package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/storage/memory"
)

func TestDefault_MatchesCanonicalStatusTable(t *testing.T) {
	doc, err := Default()
	require.NoError(t, err)

	table := domain.NewStatusTable(doc.OrderStatuses())
	require.NoError(t, table.Verify())

	for _, st := range domain.CanonicalStatuses() {
		assert.ElementsMatch(t, st.PossibleNextStatuses, table[st.ID].PossibleNextStatuses, "status %s", st.Name)
	}
}

func TestApply_DefaultSeedIntoMemory(t *testing.T) {
	ctx := context.Background()
	doc, err := Default()
	require.NoError(t, err)

	repos := Repositories{
		Statuses: memory.NewStatusRepository(),
		Catalog:  memory.NewCatalogRepository(),
		Accounts: memory.NewAccountRepository(),
		Coupons:  memory.NewCouponRepository(),
	}

	summary, err := Apply(ctx, repos, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{Statuses: 7, Books: 6, Accounts: 4, Coupons: 3}, summary)

	statuses, err := repos.Statuses.List(ctx)
	require.NoError(t, err)
	require.NoError(t, domain.NewStatusTable(statuses).Verify())

	item, err := repos.Catalog.GetItem(ctx, "roadside-picnic")
	require.NoError(t, err)
	assert.True(t, item.Inactive)

	admin, err := repos.Accounts.Get(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.RoleID)

	save10, err := repos.Coupons.Get(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, domain.CouponPercentage, save10.Type)
	assert.Equal(t, -1, save10.UsageLimit)
	assert.Equal(t, "10", save10.Discount.String())

	fix300, err := repos.Coupons.Get(ctx, "FIX300")
	require.NoError(t, err)
	assert.Equal(t, 100, fix300.UsageLimit)

	again, err := Apply(ctx, repos, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, summary, again)
}

func TestApply_SkipsMissingRepositories(t *testing.T) {
	doc, err := Default()
	require.NoError(t, err)

	summary, err := Apply(context.Background(), Repositories{Statuses: memory.NewStatusRepository()}, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{Statuses: 7}, summary)
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "statuses:\n  - id: 1\n    name: new\n    colour: red\n",
		"dangling edge":    "statuses:\n  - id: 1\n    name: new\n    next: [5]\n",
		"duplicate status": "statuses:\n  - {id: 1, name: new}\n  - {id: 1, name: new}\n",
		"negative price":   "books:\n  - {id: b1, price: -1}\n",
		"unknown role":     "accounts:\n  - {user_id: u1, role: owner}\n",
		"unknown book":     "accounts:\n  - {user_id: u1, owned: [missing]}\n",
		"reserved code":    "coupons:\n  - {code: shipping, type: fixed, discount: '1', valid_until: 2030-01-01T00:00:00Z}\n",
		"bad coupon type":  "coupons:\n  - {code: X, type: bogus, discount: '1', valid_until: 2030-01-01T00:00:00Z}\n",
		"bad discount":     "coupons:\n  - {code: X, type: fixed, discount: abc, valid_until: 2030-01-01T00:00:00Z}\n",
		"missing expiry":   "coupons:\n  - {code: X, type: fixed, discount: '1'}\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(body))
			require.ErrorIs(t, err, ErrInvalidSeed)
		})
	}
}

func TestLoadFile(t *testing.T) {
	doc, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, doc.Statuses, 7)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("books:\n  - {id: b1, title: Dune, price: 100, quantity: 1}\n"), 0o600))

	doc, err = LoadFile(path)
	require.NoError(t, err)
	require.Len(t, doc.Books, 1)
	assert.Equal(t, "Dune", doc.Books[0].Title)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
