package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reglet-dev/scripthost/application/config"
	"github.com/reglet-dev/scripthost/application/schema"
	"github.com/reglet-dev/scripthost/application/validation"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:         "schema",
			Short:       "Print the JSON schema of the configuration file",
			Args:        cobra.NoArgs,
			Annotations: map[string]string{"config": "optional"},
			RunE: func(cmd *cobra.Command, _ []string) error {
				out, err := schema.RuntimeConfigSchema()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			},
		},
		&cobra.Command{
			Use:         "validate <file>",
			Short:       "Validate a configuration file and list every problem",
			Args:        cobra.ExactArgs(1),
			Annotations: map[string]string{"config": "optional"},
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.NewLoader(config.WithValidator(nil)).Load(args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				result := validation.NewConfigValidator().Validate(&cfg)
				if result.Valid {
					a.styles.success(out, args[0], "valid")
					return nil
				}
				for _, e := range result.Errors {
					a.styles.failure(out, e.Field, e.Message)
				}
				return fmt.Errorf("%s: %d invalid settings", args[0], len(result.Errors))
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(a.cfg); err != nil {
					return err
				}
				return enc.Close()
			},
		},
	)
	return cmd
}
