package cli

import (
	"github.com/spf13/cobra"

	"lakehouse/internal/config"
)

type envView struct {
	Env           string `json:"env"`
	Catalog       string `json:"catalog"`
	ExtractSchema string `json:"extract_schema"`
	RefinedSchema string `json:"refined_schema"`
	ViewsSchema   string `json:"views_schema"`
	Source        string `json:"source"`
}

func newEnvsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List data environments and the identifiers they resolve to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envs := config.NewEnvironments(opts.cfg.ConfigDir)
			views := make([]envView, 0, len(config.ValidEnvironments))
			for _, name := range config.ValidEnvironments {
				rc, err := envs.Resolve(name)
				if err != nil {
					return err
				}
				views = append(views, envView{
					Env:           name,
					Catalog:       rc.Catalog,
					ExtractSchema: rc.ExtractSchema,
					RefinedSchema: rc.RefinedSchema,
					ViewsSchema:   rc.ViewsSchema,
					Source:        rc.SourceCatalog + "." + rc.SourceSchema,
				})
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), views)
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{v.Env, v.Catalog, v.ExtractSchema, v.RefinedSchema, v.ViewsSchema, v.Source})
			}
			return printTable(cmd.OutOrStdout(), []string{"env", "catalog", "bronze", "silver", "gold", "source"}, rows)
		},
	}
}
