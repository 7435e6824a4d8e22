package pipeline

import (
	"sort"
	"time"

	"lakehouse/internal/domain"
	"lakehouse/internal/service/extract"
	"lakehouse/internal/service/quality"
	"lakehouse/internal/service/refine"
)

// Group names, in execution order.
const (
	GroupProvisioning = "provisioning"
	GroupExtract      = "extract"
	GroupRefine       = "refine"
	GroupQuality      = "quality"
)

// Pipeline names.
const (
	SalesAnalytics    = "sales_analytics"
	SupplierAnalytics = "supplier_analytics"
)

// Components are the engines and collaborators the built-in pipelines use.
type Components struct {
	Store   domain.DatasetStore
	Extract *extract.Engine
	Refine  *refine.Engine
	Quality *quality.Engine
	// Results stores quality results; nil skips persistence.
	Results domain.QualityResultRepository
	// QualityPolicy decides which check statuses fail the quality stage.
	QualityPolicy quality.Policy
	// QualityCritical makes a failed quality stage abort the run.
	QualityCritical bool
	// StageTimeout overrides the built-in per-pipeline stage timeout when > 0.
	StageTimeout time.Duration
}

func (c Components) timeout(builtin time.Duration) time.Duration {
	if c.StageTimeout > 0 {
		return c.StageTimeout
	}
	return builtin
}

func (c Components) provisioning(timeout time.Duration) Group {
	return Group{Name: GroupProvisioning, Stages: []Stage{
		{Name: "schema_bronze", Critical: true, Timeout: timeout,
			Work: ProvisionWork{Store: c.Store, Datasets: extract.Datasets()}},
		{Name: "schema_silver", Critical: true, Timeout: timeout,
			Work: ProvisionWork{Store: c.Store, Datasets: refine.Datasets()}},
		{Name: "schema_gold", Critical: true, Timeout: timeout,
			Work: SchemaWork{Store: c.Store, Layer: domain.LayerGold}},
	}}
}

func (c Components) extractStage(name string, critical bool, timeout time.Duration, specs ...extract.SourceSpec) Stage {
	return Stage{Name: name, Critical: critical, Timeout: timeout, Work: ExtractWork{Engine: c.Extract, Specs: specs}}
}

func (c Components) refineStage(name string, timeout time.Duration, deps []string, r refine.Refinement) Stage {
	return Stage{Name: name, Critical: true, Timeout: timeout, DependsOn: deps,
		Work: RefineWork{Engine: c.Refine, Refinements: []refine.Refinement{r}}}
}

func (c Components) qualityGroup(timeout time.Duration, deps []string) Group {
	return Group{Name: GroupQuality, Stages: []Stage{{
		Name:      "quality",
		Critical:  c.QualityCritical,
		Timeout:   timeout,
		DependsOn: deps,
		Work: QualityWork{
			Engine:  c.Quality,
			Checks:  quality.DefaultBattery(),
			Policy:  c.QualityPolicy,
			Results: c.Results,
		},
	}}}
}

// SalesAnalyticsPipeline loads every bronze dataset and builds order details
// and customer orders. Orders and line items are critical extracts.
func SalesAnalyticsPipeline(c Components) Definition {
	timeout := c.timeout(3600 * time.Second)
	return Definition{
		Name: SalesAnalytics,
		Groups: []Group{
			c.provisioning(timeout),
			{Name: GroupExtract, Stages: []Stage{
				c.extractStage("ext_nation_region", false, timeout, extract.NationSpec, extract.RegionSpec),
				c.extractStage("ext_customers", false, timeout, extract.CustomersSpec),
				c.extractStage("ext_suppliers", false, timeout, extract.SuppliersSpec),
				c.extractStage("ext_parts", false, timeout, extract.PartsSpec, extract.PartsuppSpec),
				c.extractStage("ext_orders", true, timeout, extract.OrdersSpec),
				c.extractStage("ext_lineitem", true, timeout, extract.LineitemSpec),
			}},
			{Name: GroupRefine, Stages: []Stage{
				c.refineStage("ref_order_details", timeout,
					[]string{"ext_orders", "ext_lineitem", "ext_parts"}, refine.OrderDetailsRefinement),
				c.refineStage("ref_customer_orders", timeout,
					[]string{"ext_customers", "ext_nation_region", "ext_orders"}, refine.CustomerOrdersRefinement),
			}},
			c.qualityGroup(timeout, []string{"ref_order_details", "ref_customer_orders"}),
		},
	}
}

// SupplierAnalyticsPipeline loads supplier, part, and order data and builds
// order details and supplier parts. Suppliers and parts are critical extracts.
func SupplierAnalyticsPipeline(c Components) Definition {
	timeout := c.timeout(1800 * time.Second)
	return Definition{
		Name: SupplierAnalytics,
		Groups: []Group{
			c.provisioning(timeout),
			{Name: GroupExtract, Stages: []Stage{
				c.extractStage("ext_nation_region", false, timeout, extract.NationSpec, extract.RegionSpec),
				c.extractStage("ext_suppliers", true, timeout, extract.SuppliersSpec),
				c.extractStage("ext_parts", true, timeout, extract.PartsSpec, extract.PartsuppSpec),
				c.extractStage("ext_orders", false, timeout, extract.OrdersSpec),
				c.extractStage("ext_lineitem", false, timeout, extract.LineitemSpec),
			}},
			{Name: GroupRefine, Stages: []Stage{
				c.refineStage("ref_order_details", timeout,
					[]string{"ext_orders", "ext_lineitem", "ext_parts"}, refine.OrderDetailsRefinement),
				c.refineStage("ref_supplier_parts", timeout,
					[]string{"ext_suppliers", "ext_parts", "ext_nation_region"}, refine.SupplierPartsRefinement),
			}},
			c.qualityGroup(timeout, []string{"ref_order_details", "ref_supplier_parts"}),
		},
	}
}

// Registry holds pipeline definitions by name.
type Registry map[string]Definition

// DefaultRegistry returns the built-in pipelines.
func DefaultRegistry(c Components) Registry {
	return Registry{
		SalesAnalytics:    SalesAnalyticsPipeline(c),
		SupplierAnalytics: SupplierAnalyticsPipeline(c),
	}
}

// Names returns the registered pipeline names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the named definition or a NotFoundError.
func (r Registry) Get(name string) (Definition, error) {
	def, ok := r[name]
	if !ok {
		return Definition{}, domain.ErrNotFound("pipeline %q not found", name)
	}
	return def, nil
}
