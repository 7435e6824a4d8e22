package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetRef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ref     DatasetRef
		wantErr bool
	}{
		{"full", DatasetRef{Catalog: "dev_lakehouse", Schema: "bronze", Name: "orders"}, false},
		{"no catalog", DatasetRef{Schema: "bronze", Name: "orders"}, false},
		{"injection in name", DatasetRef{Schema: "bronze", Name: "orders; DROP TABLE x"}, true},
		{"quoted catalog", DatasetRef{Catalog: `"dev"`, Schema: "bronze", Name: "orders"}, true},
		{"leading digit", DatasetRef{Schema: "1bronze", Name: "orders"}, true},
		{"empty schema", DatasetRef{Name: "orders"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestDatasetRef_String(t *testing.T) {
	assert.Equal(t, "bronze.orders", DatasetRef{Schema: "bronze", Name: "orders"}.String())
	assert.Equal(t, "dev.bronze.orders", DatasetRef{Catalog: "dev", Schema: "bronze", Name: "orders"}.String())
}

func TestDataset_RefAndLineage(t *testing.T) {
	rc := RunContext{Catalog: "dev_lakehouse", ExtractSchema: "bronze", RefinedSchema: "silver", ViewsSchema: "gold"}

	bronze := Dataset{Name: "orders", Layer: LayerBronze}
	assert.Equal(t, DatasetRef{Catalog: "dev_lakehouse", Schema: "bronze", Name: "orders"}, bronze.Ref(rc))
	assert.Equal(t, ColIngestedAt, bronze.LineageColumn())

	silver := Dataset{Name: "order_details", Layer: LayerSilver}
	assert.Equal(t, "silver", silver.Ref(rc).Schema)
	assert.Equal(t, ColRefinedAt, silver.LineageColumn())
}

func TestRow_Accessors(t *testing.T) {
	ts := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	r := Row{"i": int64(7), "f": 2.5, "s": "x", "t": ts, "n": nil}

	i, ok := r.Int("i")
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)

	f, ok := r.Float("i")
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = r.Float("s")
	assert.False(t, ok)

	s, ok := r.Text("s")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	got, ok := r.Time("t")
	assert.True(t, ok)
	assert.Equal(t, ts, got)

	assert.True(t, r.IsNull("n"))
	assert.True(t, r.IsNull("missing"))
	assert.False(t, r.IsNull("i"))

	c := r.Clone()
	c["i"] = int64(8)
	assert.Equal(t, int64(7), r["i"])
}

func TestRunContext(t *testing.T) {
	rc := RunContext{
		Env: "dev", Catalog: "dev_lakehouse", ExtractSchema: "bronze", RefinedSchema: "silver",
		ViewsSchema: "gold", SourceCatalog: "samples", SourceSchema: "tpch",
	}
	require.NoError(t, rc.Validate())
	assert.Equal(t, DatasetRef{Catalog: "samples", Schema: "tpch", Name: "orders"}, rc.Source("orders"))
	assert.Equal(t, "dev_lakehouse", rc.Params()["catalog"])

	rc.RefinedSchema = "silver-layer"
	var ve *ValidationError
	assert.ErrorAs(t, rc.Validate(), &ve)
}
