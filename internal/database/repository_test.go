package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type itemModel struct {
	Key  string `gorm:"column:key;primaryKey"`
	Name string `gorm:"column:name"`
}

func (itemModel) TableName() string { return "test_items" }

type item struct {
	key, name string
}

func (i item) Key() string { return i.key }

type itemMapper struct{}

func (itemMapper) ToDomain(e itemModel) (item, error) { return item{key: e.Key, name: e.Name}, nil }
func (itemMapper) ToModel(d item) itemModel         { return itemModel{Key: d.key, Name: d.name} }

func newItemRepository(t *testing.T, keys ...string) Repository[item, itemModel] {
	t.Helper()
	db := newItemsDatabase(t)
	for _, k := range keys {
		require.NoError(t, insertItem(db.Session(context.Background()), k))
	}
	return NewRepository[item, itemModel](db, itemMapper{}, "item")
}

func TestRepository_ByKeys(t *testing.T) {
	repo := newItemRepository(t, "a", "b", "c", "d")

	got, err := repo.ByKeys(repo.db.Session(context.Background()), []string{"d", "a", "missing", "c"}, 2)
	require.NoError(t, err)
	keys := make([]string, 0, len(got))
	for _, i := range got {
		keys = append(keys, i.key)
	}
	assert.ElementsMatch(t, []string{"a", "c", "d"}, keys)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestRepository_Each(t *testing.T) {
	ctx := context.Background()
	repo := newItemRepository(t, "d", "b", "a", "c", "e")

	var seen []string
	err := repo.Each(ctx, 2, func(i item) error {
		seen = append(seen, i.key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)

	stop := errors.New("stop")
	err = repo.Each(ctx, 2, func(item) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestRepository_EachExactPages(t *testing.T) {
	keys := make([]string, 6)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%02d", i)
	}
	repo := newItemRepository(t, keys...)

	var seen []string
	require.NoError(t, repo.Each(context.Background(), 3, func(i item) error {
		seen = append(seen, i.key)
		return nil
	}))
	assert.Equal(t, keys, seen)
}

func TestRepository_ForTable(t *testing.T) {
	db := newItemsDatabase(t)
	ctx := context.Background()
	require.NoError(t, db.Session(ctx).Exec("CREATE TABLE other_items (key TEXT PRIMARY KEY, name TEXT)").Error)
	require.NoError(t, db.Session(ctx).Exec("INSERT INTO other_items (key, name) VALUES ('x', 'n-x')").Error)

	repo := NewRepositoryForTable[item, itemModel](db, itemMapper{}, "other", "other_items")
	assert.Equal(t, "other_items", repo.Table())

	got, err := repo.ByKeys(db.Session(ctx), []string{"x"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "n-x", got[0].name)
}
