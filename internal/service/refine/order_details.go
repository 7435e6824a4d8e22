package refine

import (
	"lakehouse/internal/domain"
	"lakehouse/internal/service/extract"
	"lakehouse/internal/transform"
)

// OrderDetails is one row per order line with revenue and shipping metrics.
var OrderDetails = silver("order_details", []string{"order_key", "line_number"},
	col("order_key", domain.TypeBigInt),
	col("line_number", domain.TypeInteger),
	col("customer_key", domain.TypeBigInt),
	col("part_key", domain.TypeBigInt),
	col("supplier_key", domain.TypeBigInt),
	col("order_date", domain.TypeDate),
	col("order_status", domain.TypeVarchar),
	col("order_priority", domain.TypeVarchar),
	col("part_name", domain.TypeVarchar),
	col("part_brand", domain.TypeVarchar),
	col("part_type", domain.TypeVarchar),
	col("quantity", domain.TypeDouble),
	col("unit_price", domain.TypeDouble),
	col("extended_price", domain.TypeDouble),
	col("discount_pct", domain.TypeDouble),
	col("tax_pct", domain.TypeDouble),
	col("net_revenue", domain.TypeDouble),
	col("tax_amount", domain.TypeDouble),
	col("total_charge", domain.TypeDouble),
	col("ship_date", domain.TypeDate),
	col("commit_date", domain.TypeDate),
	col("receipt_date", domain.TypeDate),
	col("ship_mode", domain.TypeVarchar),
	col("shipping_delay_days", domain.TypeInteger),
	col("delivery_delay_days", domain.TypeInteger),
	col("is_late_shipment", domain.TypeBoolean),
	col("return_flag", domain.TypeVarchar),
	col("order_year", domain.TypeInteger),
	col("order_month", domain.TypeInteger),
	col("order_quarter", domain.TypeInteger),
)

// OrderDetailsRefinement joins orders and line items (inner) with parts
// (left) and derives revenue, delay, and calendar fields.
var OrderDetailsRefinement = Refinement{
	Target: OrderDetails,
	Inputs: []domain.Dataset{extract.Orders, extract.Lineitem, extract.Parts},
	Build:  buildOrderDetails,
	Rules: []transform.Rule{
		transform.Positive("quantity"),
		transform.Positive("extended_price"),
		transform.NonNegative("net_revenue"),
	},
}

func buildOrderDetails(in Inputs, _ domain.RunContext) domain.Rowset {
	joined := transform.Join(in[extract.Orders.Name], in[extract.Lineitem.Name], transform.JoinSpec{
		Kind: transform.InnerJoin, LeftKeys: []string{"o_orderkey"}, RightKeys: []string{"l_orderkey"},
	})
	joined = transform.Join(joined, in[extract.Parts.Name], transform.JoinSpec{
		Kind: transform.LeftJoin, LeftKeys: []string{"l_partkey"}, RightKeys: []string{"p_partkey"},
	})

	out := domain.Rowset{Columns: businessColumns(OrderDetails), Rows: make([]domain.Row, 0, joined.Len())}
	for _, j := range joined.Rows {
		ext, qty := j["l_extendedprice"], j["l_quantity"]
		disc, tax := j["l_discount"], j["l_tax"]
		net := transform.Mul(ext, transform.OneMinus(disc))
		orderDate, shipDate := j["o_orderdate"], j["l_shipdate"]

		out.Rows = append(out.Rows, domain.Row{
			"order_key":           j["o_orderkey"],
			"line_number":         j["l_linenumber"],
			"customer_key":        j["o_custkey"],
			"part_key":            j["l_partkey"],
			"supplier_key":        j["l_suppkey"],
			"order_date":          orderDate,
			"order_status":        j["o_orderstatus"],
			"order_priority":      j["o_orderpriority"],
			"part_name":           j["p_name"],
			"part_brand":          j["p_brand"],
			"part_type":           j["p_type"],
			"quantity":            qty,
			"unit_price":          transform.Round(transform.Div(ext, qty), 2),
			"extended_price":      ext,
			"discount_pct":        disc,
			"tax_pct":             tax,
			"net_revenue":         transform.Round(net, 2),
			"tax_amount":          transform.Round(transform.Mul(net, tax), 2),
			"total_charge":        transform.Round(transform.Mul(net, transform.OnePlus(tax)), 2),
			"ship_date":           shipDate,
			"commit_date":         j["l_commitdate"],
			"receipt_date":        j["l_receiptdate"],
			"ship_mode":           j["l_shipmode"],
			"shipping_delay_days": transform.DaysBetween(orderDate, shipDate),
			"delivery_delay_days": transform.DaysBetween(shipDate, j["l_receiptdate"]),
			"is_late_shipment":    transform.After(shipDate, j["l_commitdate"]),
			"return_flag":         j["l_returnflag"],
			"order_year":          transform.Year(orderDate),
			"order_month":         transform.Month(orderDate),
			"order_quarter":       transform.Quarter(orderDate),
		})
	}
	return out
}
