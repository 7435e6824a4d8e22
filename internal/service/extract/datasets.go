package extract

import (
	"lakehouse/internal/domain"
	"lakehouse/internal/transform"
)

// SourceSystem is the lineage literal stamped on every bronze row.
const SourceSystem = "tpch"

func col(name, typ string) domain.Column {
	return domain.Column{Name: name, Type: typ, Nullable: true}
}

// bronze builds a bronze dataset: key columns are NOT NULL and the lineage
// columns are appended.
func bronze(name string, key []string, cols ...domain.Column) domain.Dataset {
	for i := range cols {
		for _, k := range key {
			if cols[i].Name == k {
				cols[i].Nullable = false
			}
		}
	}
	cols = append(cols,
		domain.Column{Name: domain.ColIngestedAt, Type: domain.TypeTimestamp},
		domain.Column{Name: domain.ColSourceSystem, Type: domain.TypeVarchar},
		domain.Column{Name: domain.ColBatchID, Type: domain.TypeVarchar},
	)
	return domain.Dataset{Name: name, Layer: domain.LayerBronze, Columns: cols, Key: key}
}

// Bronze datasets.
var (
	Orders = bronze("orders", []string{"o_orderkey"},
		col("o_orderkey", domain.TypeBigInt),
		col("o_custkey", domain.TypeBigInt),
		col("o_orderstatus", domain.TypeVarchar),
		col("o_totalprice", domain.TypeDouble),
		col("o_orderdate", domain.TypeDate),
		col("o_orderpriority", domain.TypeVarchar),
		col("o_clerk", domain.TypeVarchar),
		col("o_shippriority", domain.TypeInteger),
		col("o_comment", domain.TypeVarchar),
	)
	Customers = bronze("customers", []string{"c_custkey"},
		col("c_custkey", domain.TypeBigInt),
		col("c_name", domain.TypeVarchar),
		col("c_address", domain.TypeVarchar),
		col("c_nationkey", domain.TypeBigInt),
		col("c_phone", domain.TypeVarchar),
		col("c_acctbal", domain.TypeDouble),
		col("c_mktsegment", domain.TypeVarchar),
		col("c_comment", domain.TypeVarchar),
	)
	Lineitem = bronze("lineitem", []string{"l_orderkey", "l_linenumber"},
		col("l_orderkey", domain.TypeBigInt),
		col("l_partkey", domain.TypeBigInt),
		col("l_suppkey", domain.TypeBigInt),
		col("l_linenumber", domain.TypeInteger),
		col("l_quantity", domain.TypeDouble),
		col("l_extendedprice", domain.TypeDouble),
		col("l_discount", domain.TypeDouble),
		col("l_tax", domain.TypeDouble),
		col("l_returnflag", domain.TypeVarchar),
		col("l_linestatus", domain.TypeVarchar),
		col("l_shipdate", domain.TypeDate),
		col("l_commitdate", domain.TypeDate),
		col("l_receiptdate", domain.TypeDate),
		col("l_shipinstruct", domain.TypeVarchar),
		col("l_shipmode", domain.TypeVarchar),
		col("l_comment", domain.TypeVarchar),
	)
	Suppliers = bronze("suppliers", []string{"s_suppkey"},
		col("s_suppkey", domain.TypeBigInt),
		col("s_name", domain.TypeVarchar),
		col("s_address", domain.TypeVarchar),
		col("s_nationkey", domain.TypeBigInt),
		col("s_phone", domain.TypeVarchar),
		col("s_acctbal", domain.TypeDouble),
		col("s_comment", domain.TypeVarchar),
	)
	Parts = bronze("parts", []string{"p_partkey"},
		col("p_partkey", domain.TypeBigInt),
		col("p_name", domain.TypeVarchar),
		col("p_mfgr", domain.TypeVarchar),
		col("p_brand", domain.TypeVarchar),
		col("p_type", domain.TypeVarchar),
		col("p_size", domain.TypeInteger),
		col("p_container", domain.TypeVarchar),
		col("p_retailprice", domain.TypeDouble),
		col("p_comment", domain.TypeVarchar),
	)
	Partsupp = bronze("partsupp", []string{"ps_partkey", "ps_suppkey"},
		col("ps_partkey", domain.TypeBigInt),
		col("ps_suppkey", domain.TypeBigInt),
		col("ps_availqty", domain.TypeInteger),
		col("ps_supplycost", domain.TypeDouble),
		col("ps_comment", domain.TypeVarchar),
	)
	Nation = bronze("nation", []string{"n_nationkey"},
		col("n_nationkey", domain.TypeBigInt),
		col("n_name", domain.TypeVarchar),
		col("n_regionkey", domain.TypeBigInt),
		col("n_comment", domain.TypeVarchar),
	)
	Region = bronze("region", []string{"r_regionkey"},
		col("r_regionkey", domain.TypeBigInt),
		col("r_name", domain.TypeVarchar),
		col("r_comment", domain.TypeVarchar),
	)
)

// Source specs, one per bronze dataset. Source names the upstream relation.
var (
	OrdersSpec = SourceSpec{Source: "orders", Target: Orders,
		Rules: []transform.Rule{transform.NotNull("o_orderkey"), transform.NotNull("o_orderdate")}}
	CustomersSpec = SourceSpec{Source: "customer", Target: Customers,
		Rules: []transform.Rule{transform.NotNull("c_custkey"), transform.NotNull("c_name")}}
	LineitemSpec = SourceSpec{Source: "lineitem", Target: Lineitem,
		Rules: []transform.Rule{
			transform.NotNull("l_orderkey", "l_linenumber"),
			transform.Positive("l_quantity"),
			transform.Positive("l_extendedprice"),
		}}
	SuppliersSpec = SourceSpec{Source: "supplier", Target: Suppliers,
		Rules: []transform.Rule{transform.NotNull("s_suppkey"), transform.NotNull("s_name")}}
	PartsSpec = SourceSpec{Source: "part", Target: Parts,
		Rules: []transform.Rule{transform.NotNull("p_partkey")}}
	PartsuppSpec = SourceSpec{Source: "partsupp", Target: Partsupp,
		Rules: []transform.Rule{transform.NotNull("ps_partkey", "ps_suppkey")}}
	NationSpec = SourceSpec{Source: "nation", Target: Nation,
		Rules: []transform.Rule{transform.NotNull("n_nationkey")}}
	RegionSpec = SourceSpec{Source: "region", Target: Region,
		Rules: []transform.Rule{transform.NotNull("r_regionkey")}}
)

// Datasets returns every bronze dataset in declaration order.
func Datasets() []domain.Dataset {
	return []domain.Dataset{Orders, Customers, Lineitem, Suppliers, Parts, Partsupp, Nation, Region}
}

// Specs returns every source spec in declaration order.
func Specs() []SourceSpec {
	return []SourceSpec{OrdersSpec, CustomersSpec, LineitemSpec, SuppliersSpec, PartsSpec, PartsuppSpec, NationSpec, RegionSpec}
}
