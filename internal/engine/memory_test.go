package engine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/domain"
	"lakehouse/internal/engine"
)

func rowsWithTag(n int, tag string) domain.Rowset {
	rs := domain.Rowset{Columns: []string{"id", "name"}}
	for i := range n {
		rs.Rows = append(rs.Rows, domain.Row{"id": int64(i), "name": tag})
	}
	return rs
}

func TestMemoryStore_ReplaceRequiresCreate(t *testing.T) {
	store := engine.NewMemoryStore()
	ref := domain.DatasetRef{Schema: "bronze", Name: "orders"}

	var nf *domain.NotFoundError
	require.ErrorAs(t, store.Replace(context.Background(), ref, testDataset, rowsWithTag(1, "a")), &nf)

	require.NoError(t, store.CreateIfAbsent(context.Background(), ref, testDataset))
	require.NoError(t, store.Replace(context.Background(), ref, testDataset, rowsWithTag(2, "a")))
	assert.True(t, store.Exists(ref))

	got, err := store.Query(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Len(t, got.Rows, 2)

	// Mutating a returned row does not leak into the store.
	got.Rows[0]["name"] = "changed"
	again, err := store.Query(context.Background(), ref, func(r domain.Row) bool { return r["name"] == "changed" })
	require.NoError(t, err)
	assert.Empty(t, again.Rows)
}

func TestMemoryStore_ReadersNeverObserveMixedContents(t *testing.T) {
	store := engine.NewMemoryStore()
	ref := domain.DatasetRef{Schema: "bronze", Name: "orders"}
	ctx := context.Background()
	require.NoError(t, store.CreateIfAbsent(ctx, ref, testDataset))

	old := rowsWithTag(100, "old")
	next := rowsWithTag(250, "new")
	require.NoError(t, store.Replace(ctx, ref, testDataset, old))

	var stop atomic.Bool
	var mixed atomic.Int64
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				rs, err := store.Query(ctx, ref, nil)
				if err != nil {
					mixed.Add(1)
					return
				}
				tags := map[any]int{}
				for _, r := range rs.Rows {
					tags[r["name"]]++
				}
				switch {
				case len(tags) != 1:
					mixed.Add(1)
				case tags["old"] != 0 && len(rs.Rows) != 100:
					mixed.Add(1)
				case tags["new"] != 0 && len(rs.Rows) != 250:
					mixed.Add(1)
				}
			}
		}()
	}

	for i := range 200 {
		src := old
		if i%2 == 0 {
			src = next
		}
		require.NoError(t, store.Replace(ctx, ref, testDataset, src))
	}
	stop.Store(true)
	wg.Wait()
	assert.Zero(t, mixed.Load())
}

func TestMemorySource_ReadSource(t *testing.T) {
	src := engine.NewMemorySource()
	ref := domain.DatasetRef{Schema: "tpch", Name: "orders"}
	src.Put(ref, domain.Rowset{
		Columns: []string{"o_orderkey", "o_comment"},
		Rows:    []domain.Row{{"o_orderkey": int64(1), "o_comment": "x"}},
	})

	rs, err := src.ReadSource(context.Background(), ref, []domain.Column{{Name: "o_orderkey", Type: domain.TypeBigInt}})
	require.NoError(t, err)
	assert.Equal(t, []domain.Row{{"o_orderkey": int64(1)}}, rs.Rows)

	_, err = src.ReadSource(context.Background(), ref, []domain.Column{{Name: "o_orderdate", Type: domain.TypeDate}})
	var sm *domain.SchemaMismatchError
	assert.ErrorAs(t, err, &sm)

	_, err = src.ReadSource(context.Background(), domain.DatasetRef{Schema: "tpch", Name: "missing"}, nil)
	var su *domain.SourceUnavailableError
	assert.ErrorAs(t, err, &su)
}
