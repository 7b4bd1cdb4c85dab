package app

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/uom-robota/robota-core/internal/logger"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and list data type bindings",
		Long: `Resolve the configuration with the given variables, validate every
data source and data type binding, and print which source serves each
data type. No data source is contacted.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		}),
	}
}

func runCheck(cmd *cobra.Command, opts *rootOptions) error {
	tpl, err := opts.template()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if names := tpl.Variables(); len(names) > 0 {
		fmt.Fprintf(out, "Variables: %s\n", strings.Join(names, ", "))
	}

	d, err := opts.dispatcher()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header("Data Type", "Source", "Type")
	for _, dataType := range d.Configured() {
		desc, _ := d.Source(dataType)
		if err := table.Append([]string{dataType, desc.Name, desc.Type}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render bindings: %w", err)
	}
	logger.Debugf("Configuration is valid: %d data types bound", len(d.Configured()))
	return nil
}
