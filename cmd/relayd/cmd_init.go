package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/serdar/relayd/internal/config"
)

//nolint:gochecknoglobals // Cobra commands are wired up once at startup.
var (
	initOutput string

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create a starter configuration file.",
		Long: `Create a configuration file with sane defaults and a freshly
generated signing secret. Refuses to overwrite an existing file.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := initOutput
			if path == "" {
				path = config.DefaultConfigFilename
			}

			if err := config.WriteDefault(path); err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n", path)

			return nil
		},
	}
)

//nolint:gochecknoinits // Cobra requires flag setup before command execution.
func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "", "output file path (default: "+config.DefaultConfigFilename+")")
}
