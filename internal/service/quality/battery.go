package quality

import (
	"lakehouse/internal/domain"
	"lakehouse/internal/service/extract"
	"lakehouse/internal/service/refine"
)

// DefaultBattery returns the standard checks run after every pipeline:
// row counts for every bronze and silver dataset, key null checks,
// cross-layer referential integrity, business rules, and freshness.
func DefaultBattery() []Check {
	var checks []Check
	for _, ds := range extract.Datasets() {
		checks = append(checks, RowCount(ds))
	}
	for _, ds := range refine.Datasets() {
		checks = append(checks, RowCount(ds))
	}

	checks = append(checks,
		NotNull(extract.Orders, "o_orderkey"),
		NotNull(extract.Customers, "c_custkey"),
		NotNull(extract.Lineitem, "l_orderkey"),
		NotNull(refine.OrderDetails, "net_revenue"),
		NotNull(refine.CustomerOrders, "customer_key"),

		Referential(extract.Orders, []string{"o_custkey"}, extract.Customers, []string{"c_custkey"}),
		Referential(extract.Lineitem, []string{"l_orderkey"}, extract.Orders, []string{"o_orderkey"}),
		Referential(refine.OrderDetails, []string{"order_key"}, extract.Orders, []string{"o_orderkey"}),

		BusinessRule("No negative net_revenue", refine.OrderDetails, Below("net_revenue", 0)),
		BusinessRule("No zero/neg quantity", refine.OrderDetails, AtMost("quantity", 0)),
		BusinessRule("Discount range 0-1", refine.OrderDetails, Range("discount_pct", 0, 1)),
		BusinessRule("Tax range 0-1", refine.OrderDetails, Range("tax_pct", 0, 1)),
		BusinessRule("Fulfillment rate 0-100", refine.CustomerOrders, Range("fulfillment_rate", 0, 100)),
		BusinessRule("Segment not null", refine.CustomerOrders, IsNull("customer_segment")),

		Freshness(extract.Orders),
		Freshness(refine.OrderDetails),
		Freshness(refine.CustomerOrders),
	)
	return checks
}

// Datasets returns every dataset read by checks, without duplicates.
func Datasets(checks []Check) []domain.Dataset {
	seen := map[string]bool{}
	var out []domain.Dataset
	for _, c := range checks {
		for _, ds := range c.Datasets {
			k := string(ds.Layer) + "." + ds.Name
			if !seen[k] {
				seen[k] = true
				out = append(out, ds)
			}
		}
	}
	return out
}
