package domain

import "time"

// RunContext is the immutable, run-scoped parameter bag handed to every stage.
type RunContext struct {
	Env           string
	RunID         string
	Catalog       string
	ExtractSchema string
	RefinedSchema string
	ViewsSchema   string
	SourceCatalog string
	SourceSchema  string
	// StartedAt is the run's reference time; derived fields that depend on
	// "today" use it instead of the wall clock.
	StartedAt time.Time
}

// Validate checks every identifier in the context against the allow-list.
func (rc RunContext) Validate() error {
	if err := ValidateIdentifiers("catalog", rc.Catalog); err != nil {
		return err
	}
	if err := ValidateIdentifiers("schema", rc.ExtractSchema, rc.RefinedSchema, rc.ViewsSchema, rc.SourceSchema); err != nil {
		return err
	}
	if rc.SourceCatalog != "" {
		return ValidateIdentifiers("catalog", rc.SourceCatalog)
	}
	return nil
}

// SchemaFor maps a layer to its schema name.
func (rc RunContext) SchemaFor(l Layer) string {
	switch l {
	case LayerBronze:
		return rc.ExtractSchema
	case LayerSilver:
		return rc.RefinedSchema
	default:
		return rc.ViewsSchema
	}
}

// Source addresses a source relation.
func (rc RunContext) Source(name string) DatasetRef {
	return DatasetRef{Catalog: rc.SourceCatalog, Schema: rc.SourceSchema, Name: name}
}

// Params returns the context as a string map, for logging and persistence.
func (rc RunContext) Params() map[string]string {
	return map[string]string{
		"env":            rc.Env,
		"catalog":        rc.Catalog,
		"extract_schema": rc.ExtractSchema,
		"refined_schema": rc.RefinedSchema,
		"views_schema":   rc.ViewsSchema,
		"source_catalog": rc.SourceCatalog,
		"source_schema":  rc.SourceSchema,
	}
}
