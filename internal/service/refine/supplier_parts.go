package refine

import (
	"lakehouse/internal/domain"
	"lakehouse/internal/service/extract"
	"lakehouse/internal/transform"
)

// SupplierParts is one row per (supplier, part) offer with margin and
// regional cost competitiveness.
var SupplierParts = silver("supplier_parts", []string{"supplier_key", "part_key"},
	col("supplier_key", domain.TypeBigInt),
	col("supplier_name", domain.TypeVarchar),
	col("supplier_nation", domain.TypeVarchar),
	col("supplier_region", domain.TypeVarchar),
	col("supplier_acct_balance", domain.TypeDouble),
	col("part_key", domain.TypeBigInt),
	col("part_name", domain.TypeVarchar),
	col("part_brand", domain.TypeVarchar),
	col("part_type", domain.TypeVarchar),
	col("part_size", domain.TypeInteger),
	col("retail_price", domain.TypeDouble),
	col("supply_cost", domain.TypeDouble),
	col("available_qty", domain.TypeInteger),
	col("cost_margin", domain.TypeDouble),
	col("margin_pct", domain.TypeDouble),
	col("cost_rank_in_region", domain.TypeInteger),
	col("is_cheapest_in_region", domain.TypeBoolean),
	col("avg_region_cost", domain.TypeDouble),
	col("cost_vs_region_avg", domain.TypeDouble),
)

// SupplierPartsRefinement joins suppliers, part-supplier offers and parts
// (inner) with geography (left) and ranks supply cost within each
// (region, part type) partition.
var SupplierPartsRefinement = Refinement{
	Target: SupplierParts,
	Inputs: []domain.Dataset{extract.Suppliers, extract.Partsupp, extract.Parts, extract.Nation, extract.Region},
	Build:  buildSupplierParts,
	Rules:  []transform.Rule{transform.NotNull("supplier_key", "part_key")},
}

var regionPartition = []string{"supplier_region", "part_type"}

func buildSupplierParts(in Inputs, _ domain.RunContext) domain.Rowset {
	joined := transform.Join(in[extract.Suppliers.Name], in[extract.Partsupp.Name], transform.JoinSpec{
		Kind: transform.InnerJoin, LeftKeys: []string{"s_suppkey"}, RightKeys: []string{"ps_suppkey"},
	})
	joined = transform.Join(joined, in[extract.Parts.Name], transform.JoinSpec{
		Kind: transform.InnerJoin, LeftKeys: []string{"ps_partkey"}, RightKeys: []string{"p_partkey"},
	})
	joined = transform.Join(joined, in[extract.Nation.Name], transform.JoinSpec{
		Kind: transform.LeftJoin, LeftKeys: []string{"s_nationkey"}, RightKeys: []string{"n_nationkey"},
	})
	joined = transform.Join(joined, in[extract.Region.Name], transform.JoinSpec{
		Kind: transform.LeftJoin, LeftKeys: []string{"n_regionkey"}, RightKeys: []string{"r_regionkey"},
	})

	out := domain.Rowset{Columns: businessColumns(SupplierParts), Rows: make([]domain.Row, 0, joined.Len())}
	for _, j := range joined.Rows {
		retail, cost := j["p_retailprice"], j["ps_supplycost"]
		margin := transform.Sub(retail, cost)
		out.Rows = append(out.Rows, domain.Row{
			"supplier_key":          j["s_suppkey"],
			"supplier_name":         j["s_name"],
			"supplier_nation":       j["n_name"],
			"supplier_region":       j["r_name"],
			"supplier_acct_balance": j["s_acctbal"],
			"part_key":              j["p_partkey"],
			"part_name":             j["p_name"],
			"part_brand":            j["p_brand"],
			"part_type":             j["p_type"],
			"part_size":             j["p_size"],
			"retail_price":          retail,
			"supply_cost":           cost,
			"available_qty":         j["ps_availqty"],
			"cost_margin":           transform.Round(margin, 2),
			"margin_pct":            transform.Round(transform.Div(margin, retail), 4),
		})
	}

	transform.DenseRank(out.Rows, regionPartition, []transform.SortKey{transform.Asc("supply_cost")}, "cost_rank_in_region")
	transform.PartitionAvg(out.Rows, regionPartition, "supply_cost", "_avg_cost")
	for _, r := range out.Rows {
		rank, _ := r.Int("cost_rank_in_region")
		avg := r["_avg_cost"]
		delete(r, "_avg_cost")
		r["is_cheapest_in_region"] = rank == 1
		r["avg_region_cost"] = transform.Round(avg, 2)
		r["cost_vs_region_avg"] = transform.Round(transform.Div(r["supply_cost"], avg), 4)
	}
	return out
}
