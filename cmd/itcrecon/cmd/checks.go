package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"itc-reconciliation-service/internal/models"
)

func newChecksCmd(opts *rootOptions) *cobra.Command {
	var (
		outputFormat string
		outputFile   string
		supplier     string
		checkType    string
	)

	cmd := &cobra.Command{
		Use:   "checks",
		Short: "List the compliance audit trail",
		Long: `checks lists the recorded compliance checks, oldest first.

Examples:
  itcrecon checks
  itcrecon checks --supplier 29AAAAA0000A1Z5 --type RETURN_FILED --output-format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := signalContext()
			defer cancel()

			checks, err := app.service.Recorder().List(ctx)
			if err != nil {
				return err
			}

			return opts.writeReport(outputFormat, outputFile, filterChecks(checks, supplier, checkType))
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output-format", "o", "", "output format: console, json, csv, xlsx")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "output file path (default: stdout)")
	cmd.Flags().StringVar(&supplier, "supplier", "", "only checks for this supplier GSTIN")
	cmd.Flags().StringVar(&checkType, "type", "", "only checks of this type")

	return cmd
}

func filterChecks(checks []*models.ComplianceCheck, supplier, checkType string) []*models.ComplianceCheck {
	supplier = models.NormalizeGSTIN(supplier)
	filtered := make([]*models.ComplianceCheck, 0, len(checks))
	for _, c := range checks {
		if supplier != "" && c.SupplierID != supplier {
			continue
		}
		if checkType != "" && !strings.EqualFold(c.CheckType, checkType) {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}
