package refine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/domain"
	"lakehouse/internal/engine"
	"lakehouse/internal/service/extract"
	"lakehouse/internal/transform"
)

var runStart = time.Date(1998, 8, 10, 6, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testRunContext() domain.RunContext {
	return domain.RunContext{
		Env: "dev", RunID: "sales_analytics_19980810_060000",
		Catalog: "dev_lakehouse", ExtractSchema: "bronze", RefinedSchema: "silver", ViewsSchema: "gold",
		SourceCatalog: "samples", SourceSchema: "tpch", StartedAt: runStart,
	}
}

func rs(ds domain.Dataset, rows ...domain.Row) domain.Rowset {
	return domain.Rowset{Columns: ds.ColumnNames(), Rows: rows}
}

func salesInputs() Inputs {
	return Inputs{
		extract.Orders.Name: rs(extract.Orders,
			domain.Row{"o_orderkey": int64(1), "o_custkey": int64(10), "o_orderstatus": "F", "o_totalprice": 300.0, "o_orderdate": date(1998, 1, 2), "o_orderpriority": "1-URGENT"},
			domain.Row{"o_orderkey": int64(2), "o_custkey": int64(10), "o_orderstatus": "O", "o_totalprice": 100.0, "o_orderdate": date(1998, 1, 12)},
			domain.Row{"o_orderkey": int64(3), "o_custkey": int64(20), "o_orderstatus": "F", "o_totalprice": 50.0, "o_orderdate": date(1998, 7, 31)},
		),
		extract.Lineitem.Name: rs(extract.Lineitem,
			domain.Row{"l_orderkey": int64(1), "l_linenumber": int64(1), "l_partkey": int64(100), "l_suppkey": int64(7),
				"l_quantity": 4.0, "l_extendedprice": 100.0, "l_discount": 0.1, "l_tax": 0.05,
				"l_shipdate": date(1998, 1, 5), "l_commitdate": date(1998, 1, 4), "l_receiptdate": date(1998, 1, 9), "l_shipmode": "AIR", "l_returnflag": "N"},
			domain.Row{"l_orderkey": int64(1), "l_linenumber": int64(2), "l_partkey": int64(999), "l_suppkey": int64(7),
				"l_quantity": 1.0, "l_extendedprice": 50.0, "l_discount": 0.0, "l_tax": 0.08,
				"l_shipdate": date(1998, 1, 3), "l_commitdate": date(1998, 1, 4), "l_receiptdate": date(1998, 1, 3)},
			domain.Row{"l_orderkey": int64(1), "l_linenumber": int64(3), "l_partkey": int64(100),
				"l_quantity": 1.0, "l_extendedprice": 10.0, "l_discount": 1.5, "l_tax": 0.0},
			domain.Row{"l_orderkey": int64(42), "l_linenumber": int64(1), "l_partkey": int64(100),
				"l_quantity": 1.0, "l_extendedprice": 10.0, "l_discount": 0.0, "l_tax": 0.0},
		),
		extract.Parts.Name: rs(extract.Parts,
			domain.Row{"p_partkey": int64(100), "p_name": "bolt", "p_brand": "Brand#1", "p_type": "STEEL", "p_retailprice": 20.0},
		),
		extract.Customers.Name: rs(extract.Customers,
			domain.Row{"c_custkey": int64(10), "c_name": "Customer#10", "c_nationkey": int64(0), "c_acctbal": 5.5, "c_mktsegment": "BUILDING"},
			domain.Row{"c_custkey": int64(20), "c_name": "Customer#20", "c_nationkey": int64(77)},
			domain.Row{"c_custkey": int64(30), "c_name": "Customer#30", "c_nationkey": int64(0)},
		),
		extract.Nation.Name: rs(extract.Nation,
			domain.Row{"n_nationkey": int64(0), "n_name": "ALGERIA", "n_regionkey": int64(0)},
		),
		extract.Region.Name: rs(extract.Region,
			domain.Row{"r_regionkey": int64(0), "r_name": "AFRICA"},
		),
	}
}

func byKey(rows []domain.Row, cols ...string) map[string]domain.Row {
	out := make(map[string]domain.Row, len(rows))
	for _, r := range rows {
		k, _ := transform.KeyOf(r, cols)
		out[k] = r
	}
	return out
}

func key(vals ...int64) string {
	r := domain.Row{}
	cols := make([]string, len(vals))
	for i, v := range vals {
		cols[i] = string(rune('a' + i))
		r[cols[i]] = v
	}
	k, _ := transform.KeyOf(r, cols)
	return k
}

func TestOrderDetails(t *testing.T) {
	final, st := OrderDetailsRefinement.Compute(salesInputs(), testRunContext())

	require.Len(t, final.Rows, 2, "orphan line excluded by inner join, negative revenue filtered")
	assert.Equal(t, 3, st.Built)
	assert.Equal(t, 1, st.Dropped)

	rows := byKey(final.Rows, "order_key", "line_number")
	first := rows[key(1, 1)]
	require.NotNil(t, first)
	assert.Equal(t, int64(10), first["customer_key"])
	assert.Equal(t, "bolt", first["part_name"])
	assert.InDelta(t, 25.0, first["unit_price"], 1e-9)
	assert.InDelta(t, 90.0, first["net_revenue"], 1e-9)
	assert.InDelta(t, 4.5, first["tax_amount"], 1e-9)
	assert.InDelta(t, 94.5, first["total_charge"], 1e-9)
	assert.Equal(t, int64(3), first["shipping_delay_days"])
	assert.Equal(t, int64(4), first["delivery_delay_days"])
	assert.Equal(t, true, first["is_late_shipment"])
	assert.Equal(t, int64(1998), first["order_year"])
	assert.Equal(t, int64(1), first["order_month"])
	assert.Equal(t, int64(1), first["order_quarter"])

	second := rows[key(1, 2)]
	require.NotNil(t, second)
	assert.Nil(t, second["part_name"], "missing part lookup yields NULL, not row loss")
	assert.Equal(t, false, second["is_late_shipment"])
	assert.InDelta(t, 54.0, second["total_charge"], 1e-9)
	assert.NotContains(t, second, domain.ColRefinedAt)
}

func TestCustomerOrders(t *testing.T) {
	final, _ := CustomerOrdersRefinement.Compute(salesInputs(), testRunContext())

	require.Len(t, final.Rows, 2, "customers without orders excluded")
	rows := byKey(final.Rows, "customer_key")

	c10 := rows[key(10)]
	require.NotNil(t, c10)
	assert.Equal(t, "ALGERIA", c10["nation_name"])
	assert.Equal(t, "AFRICA", c10["region_name"])
	assert.Equal(t, int64(2), c10["total_orders"])
	assert.InDelta(t, 400.0, c10["total_revenue"], 1e-9)
	assert.InDelta(t, 200.0, c10["avg_order_value"], 1e-9)
	assert.Equal(t, date(1998, 1, 2), c10["first_order_date"])
	assert.Equal(t, date(1998, 1, 12), c10["last_order_date"])
	assert.Equal(t, int64(210), c10["days_since_last_order"])
	assert.InDelta(t, 10.0, c10["order_frequency_days"], 1e-9)
	assert.Equal(t, int64(1), c10["fulfilled_orders"])
	assert.Equal(t, int64(1), c10["open_orders"])
	assert.InDelta(t, 50.0, c10["fulfillment_rate"], 1e-9)
	assert.Equal(t, int64(10), c10["customer_tenure_days"])

	c20 := rows[key(20)]
	require.NotNil(t, c20)
	assert.Nil(t, c20["nation_name"], "missing nation yields NULL")
	assert.Nil(t, c20["order_frequency_days"], "single order has no frequency")
	assert.InDelta(t, 100.0, c20["fulfillment_rate"], 1e-9)

	// Two customers over five buckets: buckets 1 and 2.
	assert.Equal(t, int64(1), c20["rfm_recency_score"], "most recent order ranks first")
	assert.Equal(t, int64(2), c10["rfm_recency_score"])
	assert.Equal(t, int64(1), c10["rfm_frequency_score"])
	assert.Equal(t, int64(1), c10["rfm_monetary_score"])
	assert.Equal(t, "Champions", c10["customer_segment"])
	assert.Equal(t, "Champions", c20["customer_segment"])
}

func TestCustomerSegment(t *testing.T) {
	tests := []struct {
		r, f, m int64
		want    string
	}{
		{1, 1, 1, "Champions"},
		{2, 3, 5, "Loyal Customers"},
		{1, 5, 2, "Big Spenders"},
		{3, 3, 5, "Potential Loyalists"},
		{4, 4, 1, "At Risk"},
		{5, 1, 5, "Cannot Lose Them"},
		{3, 5, 5, "Others"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			row := domain.Row{"rfm_recency_score": tt.r, "rfm_frequency_score": tt.f, "rfm_monetary_score": tt.m}
			assert.Equal(t, tt.want, customerSegment(row))
		})
	}
}

func supplierInputs() Inputs {
	in := salesInputs()
	in[extract.Suppliers.Name] = rs(extract.Suppliers,
		domain.Row{"s_suppkey": int64(1), "s_name": "S1", "s_nationkey": int64(0)},
		domain.Row{"s_suppkey": int64(2), "s_name": "S2", "s_nationkey": int64(0)},
		domain.Row{"s_suppkey": int64(3), "s_name": "S3", "s_nationkey": int64(0)},
	)
	in[extract.Partsupp.Name] = rs(extract.Partsupp,
		domain.Row{"ps_partkey": int64(100), "ps_suppkey": int64(1), "ps_supplycost": 5.0, "ps_availqty": int64(10)},
		domain.Row{"ps_partkey": int64(100), "ps_suppkey": int64(2), "ps_supplycost": 5.0},
		domain.Row{"ps_partkey": int64(100), "ps_suppkey": int64(3), "ps_supplycost": 8.0},
		domain.Row{"ps_partkey": int64(555), "ps_suppkey": int64(3), "ps_supplycost": 1.0},
	)
	return in
}

func TestSupplierParts(t *testing.T) {
	final, _ := SupplierPartsRefinement.Compute(supplierInputs(), testRunContext())

	require.Len(t, final.Rows, 3, "offer for unknown part excluded")
	rows := byKey(final.Rows, "supplier_key", "part_key")

	s1 := rows[key(1, 100)]
	require.NotNil(t, s1)
	assert.Equal(t, "AFRICA", s1["supplier_region"])
	assert.InDelta(t, 15.0, s1["cost_margin"], 1e-9)
	assert.InDelta(t, 0.75, s1["margin_pct"], 1e-9)
	assert.Equal(t, int64(1), s1["cost_rank_in_region"])
	assert.Equal(t, true, s1["is_cheapest_in_region"])
	assert.InDelta(t, 6.0, s1["avg_region_cost"], 1e-9)
	assert.InDelta(t, 0.8333, s1["cost_vs_region_avg"], 1e-9)

	assert.Equal(t, int64(1), rows[key(2, 100)]["cost_rank_in_region"], "ties share a rank")
	s3 := rows[key(3, 100)]
	assert.Equal(t, int64(2), s3["cost_rank_in_region"], "dense rank has no gaps")
	assert.Equal(t, false, s3["is_cheapest_in_region"])
	assert.NotContains(t, s3, "_avg_cost")
}

func TestCompute_DeterministicAcrossInputOrder(t *testing.T) {
	for _, r := range All() {
		t.Run(r.Target.Name, func(t *testing.T) {
			in := supplierInputs()
			a, _ := r.Compute(in, testRunContext())

			reversed := Inputs{}
			for name, set := range in {
				rows := make([]domain.Row, len(set.Rows))
				for i, row := range set.Rows {
					rows[len(rows)-1-i] = row.Clone()
				}
				reversed[name] = domain.Rowset{Columns: set.Columns, Rows: rows}
			}
			b, _ := r.Compute(reversed, testRunContext())
			assert.Equal(t, a.Rows, b.Rows)
		})
	}
}

func TestEngine_RunStampsAndReplaces(t *testing.T) {
	ctx := context.Background()
	rc := testRunContext()
	store := engine.NewMemoryStore()
	in := supplierInputs()
	for _, ds := range extract.Datasets() {
		require.NoError(t, store.CreateIfAbsent(ctx, ds.Ref(rc), ds))
		if set, ok := in[ds.Name]; ok {
			require.NoError(t, store.Replace(ctx, ds.Ref(rc), ds, set))
		}
	}
	for _, ds := range Datasets() {
		require.NoError(t, store.CreateIfAbsent(ctx, ds.Ref(rc), ds))
	}

	eng := NewEngine(store, slog.New(slog.DiscardHandler))
	refinedAt := runStart.Add(time.Minute)
	eng.SetClock(func() time.Time { return refinedAt })

	stats, err := eng.Run(ctx, rc, All()...)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	for _, st := range stats {
		assert.Equal(t, stats[0].BatchID, st.BatchID)
	}

	got, err := store.Query(ctx, OrderDetails.Ref(rc), nil)
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	for _, r := range got.Rows {
		assert.Equal(t, refinedAt, r[domain.ColRefinedAt])
		assert.Equal(t, stats[0].BatchID, r[domain.ColBatchID])
	}
}

func TestEngine_MissingInputFails(t *testing.T) {
	eng := NewEngine(engine.NewMemoryStore(), slog.New(slog.DiscardHandler))
	_, err := eng.Run(context.Background(), testRunContext(), OrderDetailsRefinement)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, err.Error(), "refine order_details")
}
