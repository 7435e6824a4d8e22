package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"lakehouse/internal/domain"
)

// ValidEnvironments is the closed set of data environments.
var ValidEnvironments = []string{"dev", "stage", "prod"}

// EnvironmentFile is the YAML shape of configs/<env>.yaml. Empty fields fall
// back to the built-in defaults.
type EnvironmentFile struct {
	Catalog       string `yaml:"catalog"`
	ExtractSchema string `yaml:"extract_schema"`
	RefinedSchema string `yaml:"refined_schema"`
	ViewsSchema   string `yaml:"views_schema"`
	SourceCatalog string `yaml:"source_catalog"`
	SourceSchema  string `yaml:"source_schema"`
}

// Environments resolves an environment name to catalog and schema identifiers.
type Environments struct {
	dir string
}

// NewEnvironments creates a resolver reading <dir>/<env>.yaml. An empty dir
// uses only the built-in defaults.
func NewEnvironments(dir string) *Environments {
	return &Environments{dir: dir}
}

// DefaultEnvironment returns the built-in identifiers for env.
func DefaultEnvironment(env string) EnvironmentFile {
	return EnvironmentFile{
		Catalog:       env + "_lakehouse",
		ExtractSchema: "bronze",
		RefinedSchema: "silver",
		ViewsSchema:   "gold",
		SourceCatalog: "samples",
		SourceSchema:  "tpch",
	}
}

// Resolve returns the run context for env. The RunID and StartedAt fields are
// left for the caller. It fails with InvalidEnvironmentError for names outside
// ValidEnvironments and with ValidationError for identifiers that are not on
// the allow-list.
func (e *Environments) Resolve(env string) (domain.RunContext, error) {
	if !slices.Contains(ValidEnvironments, env) {
		return domain.RunContext{}, &domain.InvalidEnvironmentError{Env: env, Valid: ValidEnvironments}
	}

	ef := DefaultEnvironment(env)
	if e.dir != "" {
		fromFile, err := e.load(env)
		if err != nil {
			return domain.RunContext{}, err
		}
		ef.merge(fromFile)
	}

	rc := domain.RunContext{
		Env:           env,
		Catalog:       ef.Catalog,
		ExtractSchema: ef.ExtractSchema,
		RefinedSchema: ef.RefinedSchema,
		ViewsSchema:   ef.ViewsSchema,
		SourceCatalog: ef.SourceCatalog,
		SourceSchema:  ef.SourceSchema,
	}
	if err := rc.Validate(); err != nil {
		return domain.RunContext{}, fmt.Errorf("environment %s: %w", env, err)
	}
	return rc, nil
}

// NewRunContext resolves env and stamps the run id and start time.
func (e *Environments) NewRunContext(env, pipeline string, start time.Time) (domain.RunContext, error) {
	rc, err := e.Resolve(env)
	if err != nil {
		return domain.RunContext{}, err
	}
	rc.RunID = domain.NewRunID(pipeline, start)
	rc.StartedAt = start.UTC()
	return rc, nil
}

func (e *Environments) load(env string) (EnvironmentFile, error) {
	path := filepath.Join(e.dir, env+".yaml")
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the closed environment set
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EnvironmentFile{}, nil
		}
		return EnvironmentFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	var ef EnvironmentFile
	if err := yaml.Unmarshal(data, &ef); err != nil {
		return EnvironmentFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return ef, nil
}

func (ef *EnvironmentFile) merge(o EnvironmentFile) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&ef.Catalog, o.Catalog)
	set(&ef.ExtractSchema, o.ExtractSchema)
	set(&ef.RefinedSchema, o.RefinedSchema)
	set(&ef.ViewsSchema, o.ViewsSchema)
	set(&ef.SourceCatalog, o.SourceCatalog)
	set(&ef.SourceSchema, o.SourceSchema)
}
