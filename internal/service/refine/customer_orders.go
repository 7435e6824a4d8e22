package refine

import (
	"time"

	"lakehouse/internal/domain"
	"lakehouse/internal/service/extract"
	"lakehouse/internal/transform"
)

// CustomerOrders is one row per customer with at least one order: order
// aggregates, geography, and RFM scoring.
var CustomerOrders = silver("customer_orders", []string{"customer_key"},
	col("customer_key", domain.TypeBigInt),
	col("customer_name", domain.TypeVarchar),
	col("market_segment", domain.TypeVarchar),
	col("nation_name", domain.TypeVarchar),
	col("region_name", domain.TypeVarchar),
	col("account_balance", domain.TypeDouble),
	col("total_orders", domain.TypeBigInt),
	col("total_revenue", domain.TypeDouble),
	col("avg_order_value", domain.TypeDouble),
	col("first_order_date", domain.TypeDate),
	col("last_order_date", domain.TypeDate),
	col("days_since_last_order", domain.TypeInteger),
	col("order_frequency_days", domain.TypeDouble),
	col("fulfilled_orders", domain.TypeBigInt),
	col("open_orders", domain.TypeBigInt),
	col("partial_orders", domain.TypeBigInt),
	col("fulfillment_rate", domain.TypeDouble),
	col("customer_tenure_days", domain.TypeInteger),
	col("rfm_recency_score", domain.TypeInteger),
	col("rfm_frequency_score", domain.TypeInteger),
	col("rfm_monetary_score", domain.TypeInteger),
	col("customer_segment", domain.TypeVarchar),
)

// CustomerOrdersRefinement aggregates orders per customer. Customers without
// orders are excluded.
var CustomerOrdersRefinement = Refinement{
	Target: CustomerOrders,
	Inputs: []domain.Dataset{extract.Customers, extract.Nation, extract.Region, extract.Orders},
	Build:  buildCustomerOrders,
	Rules:  []transform.Rule{transform.Positive("total_orders")},
}

// RFM buckets.
const rfmBuckets = 5

type orderAgg struct {
	count     int64
	priced    int64
	revenue   float64
	first     time.Time
	last      time.Time
	hasDates  bool
	fulfilled int64
	open      int64
	partial   int64
}

func (a *orderAgg) add(r domain.Row) {
	a.count++
	if p, ok := r.Float("o_totalprice"); ok {
		a.revenue += p
		a.priced++
	}
	if d, ok := r.Time("o_orderdate"); ok {
		if !a.hasDates || d.Before(a.first) {
			a.first = d
		}
		if !a.hasDates || d.After(a.last) {
			a.last = d
		}
		a.hasDates = true
	}
	switch s, _ := r.Text("o_orderstatus"); s {
	case "F":
		a.fulfilled++
	case "O":
		a.open++
	case "P":
		a.partial++
	}
}

func (a *orderAgg) dates() (first, last any) {
	if !a.hasDates {
		return nil, nil
	}
	return a.first, a.last
}

func buildCustomerOrders(in Inputs, rc domain.RunContext) domain.Rowset {
	geo := transform.Join(in[extract.Customers.Name], in[extract.Nation.Name], transform.JoinSpec{
		Kind: transform.LeftJoin, LeftKeys: []string{"c_nationkey"}, RightKeys: []string{"n_nationkey"},
	})
	geo = transform.Join(geo, in[extract.Region.Name], transform.JoinSpec{
		Kind: transform.LeftJoin, LeftKeys: []string{"n_regionkey"}, RightKeys: []string{"r_regionkey"},
	})

	aggs := make(map[string]*orderAgg)
	for _, o := range in[extract.Orders.Name].Rows {
		k, ok := transform.KeyOf(o, []string{"o_custkey"})
		if !ok || o.IsNull("o_orderkey") {
			continue
		}
		a := aggs[k]
		if a == nil {
			a = &orderAgg{}
			aggs[k] = a
		}
		a.add(o)
	}

	today := rc.StartedAt
	out := domain.Rowset{Columns: businessColumns(CustomerOrders)}
	for _, c := range geo.Rows {
		a := &orderAgg{}
		if k, ok := transform.KeyOf(c, []string{"c_custkey"}); ok && aggs[k] != nil {
			a = aggs[k]
		}
		first, last := a.dates()

		var avg, freq any = 0.0, nil
		if a.priced > 0 {
			avg = transform.Round(a.revenue/float64(a.priced), 2)
		}
		if a.count > 1 {
			freq = transform.Round(transform.Div(transform.DaysBetween(first, last), float64(a.count-1)), 2)
		}
		rate := 0.0
		if a.count > 0 {
			rate = transform.Round(100*float64(a.fulfilled)/float64(a.count), 2).(float64)
		}

		out.Rows = append(out.Rows, domain.Row{
			"customer_key":          c["c_custkey"],
			"customer_name":         c["c_name"],
			"market_segment":        c["c_mktsegment"],
			"nation_name":           c["n_name"],
			"region_name":           c["r_name"],
			"account_balance":       c["c_acctbal"],
			"total_orders":          a.count,
			"total_revenue":         transform.Round(a.revenue, 2),
			"avg_order_value":       avg,
			"first_order_date":      first,
			"last_order_date":       last,
			"days_since_last_order": transform.DaysBetween(last, today),
			"order_frequency_days":  freq,
			"fulfilled_orders":      a.fulfilled,
			"open_orders":           a.open,
			"partial_orders":        a.partial,
			"fulfillment_rate":      rate,
			"customer_tenure_days":  transform.DaysBetween(first, last),
		})
	}

	// Scores are computed over customers with orders only.
	scored := make([]domain.Row, 0, len(out.Rows))
	for _, r := range out.Rows {
		if n, _ := r.Int("total_orders"); n > 0 {
			scored = append(scored, r)
		}
	}
	transform.Ntile(scored, rfmBuckets, []transform.SortKey{transform.Asc("days_since_last_order"), transform.Asc("customer_key")}, "rfm_recency_score")
	transform.Ntile(scored, rfmBuckets, []transform.SortKey{transform.Desc("total_orders"), transform.Asc("customer_key")}, "rfm_frequency_score")
	transform.Ntile(scored, rfmBuckets, []transform.SortKey{transform.Desc("total_revenue"), transform.Asc("customer_key")}, "rfm_monetary_score")
	for _, r := range scored {
		r["customer_segment"] = customerSegment(r)
	}
	return out
}

// customerSegment maps RFM scores to a segment label. Lower scores are better
// (bucket 1 holds the most recent, most frequent, highest-spending customers).
func customerSegment(r domain.Row) string {
	rec, _ := r.Int("rfm_recency_score")
	freq, _ := r.Int("rfm_frequency_score")
	mon, _ := r.Int("rfm_monetary_score")
	switch {
	case rec <= 2 && freq <= 2 && mon <= 2:
		return "Champions"
	case rec <= 2 && freq <= 3:
		return "Loyal Customers"
	case rec <= 2 && mon <= 2:
		return "Big Spenders"
	case rec <= 3 && freq <= 3:
		return "Potential Loyalists"
	case rec >= 4 && freq >= 4:
		return "At Risk"
	case rec >= 4 && freq <= 2:
		return "Cannot Lose Them"
	default:
		return "Others"
	}
}
