// Command billing-export fetches one month of cloud billing data and writes
// it to a CSV file in the provider-neutral column order.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/softwareone-finops/cloud-billing/internal/alibaba"
	"github.com/softwareone-finops/cloud-billing/internal/azure"
	"github.com/softwareone-finops/cloud-billing/internal/billing"
	"github.com/softwareone-finops/cloud-billing/internal/export"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
	"github.com/softwareone-finops/cloud-billing/internal/version"
)

type exportFlags struct {
	provider string
	month    string
	output   string
	logLevel string

	// Alibaba Cloud
	accessKeyID     string
	accessKeySecret string
	regionID        string

	// Azure
	tenantID         string
	clientID         string
	clientSecret     string
	billingAccountID string
	china            bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &exportFlags{}

	root := &cobra.Command{
		Use:   "billing-export",
		Short: "Export monthly cloud billing data to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, flags)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Flags().StringVar(&flags.provider, "provider", "",
		"cloud provider: alibaba or azure (required)")
	root.Flags().StringVar(&flags.month, "month", "",
		"billing month in YYYY-MM format, e.g. 2025-10 (required)")
	root.Flags().StringVarP(&flags.output, "output", "o", "",
		"output CSV file path (default: {provider}_billing_{month}.csv)")
	root.Flags().StringVar(&flags.logLevel, "log-level", "info",
		"log level: debug, info, warn, error")

	root.Flags().StringVar(&flags.accessKeyID, "access-key-id", "",
		"Alibaba Cloud access key ID (or set ALIBABA_ACCESS_KEY_ID)")
	root.Flags().StringVar(&flags.accessKeySecret, "access-key-secret", "",
		"Alibaba Cloud access key secret (or set ALIBABA_ACCESS_KEY_SECRET)")
	root.Flags().StringVar(&flags.regionID, "region-id", "cn-hangzhou",
		"Alibaba Cloud region ID")

	root.Flags().StringVar(&flags.tenantID, "tenant-id", "",
		"Azure tenant ID (or set AZURE_TENANT_ID)")
	root.Flags().StringVar(&flags.clientID, "client-id", "",
		"Azure client ID (or set AZURE_CLIENT_ID)")
	root.Flags().StringVar(&flags.clientSecret, "client-secret", "",
		"Azure client secret (or set AZURE_CLIENT_SECRET)")
	root.Flags().StringVar(&flags.billingAccountID, "billing-account-id", "",
		"Azure billing account ID")
	root.Flags().BoolVar(&flags.china, "china", false,
		"use the Azure China (21Vianet) endpoints")

	_ = root.MarkFlagRequired("provider")
	_ = root.MarkFlagRequired("month")

	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			for k, v := range version.Info() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, v)
			}
		},
	}
}

// runExport validates shared inputs and routes to the provider export.
func runExport(cmd *cobra.Command, flags *exportFlags) error {
	if err := billing.ValidateCycle(flags.month); err != nil {
		return err
	}

	switch flags.provider {
	case "alibaba":
		return runAlibaba(cmd, flags)
	case "azure":
		return runAzure(cmd, flags)
	default:
		return &billing.ValidationError{
			Field:  "provider",
			Reason: fmt.Sprintf("unknown provider %q, expected alibaba or azure", flags.provider),
		}
	}
}

func runAlibaba(cmd *cobra.Command, flags *exportFlags) error {
	accessKeyID := orEnv(flags.accessKeyID, "ALIBABA_ACCESS_KEY_ID")
	accessKeySecret := orEnv(flags.accessKeySecret, "ALIBABA_ACCESS_KEY_SECRET")
	if accessKeyID == "" || accessKeySecret == "" {
		return fmt.Errorf("alibaba credentials required: set --access-key-id/--access-key-secret or the ALIBABA_ACCESS_KEY_ID/ALIBABA_ACCESS_KEY_SECRET environment variables")
	}

	log := logger.New(flags.logLevel)

	client, err := alibaba.NewClient(accessKeyID, accessKeySecret, flags.regionID, log)
	if err != nil {
		return err
	}

	records, err := client.FetchAllPages(cmd.Context(), flags.month, alibaba.DefaultPageSize)
	if err != nil {
		return err
	}

	return writeRecords(cmd, flags, log, records)
}

func runAzure(cmd *cobra.Command, flags *exportFlags) error {
	tenantID := orEnv(flags.tenantID, "AZURE_TENANT_ID")
	clientID := orEnv(flags.clientID, "AZURE_CLIENT_ID")
	clientSecret := orEnv(flags.clientSecret, "AZURE_CLIENT_SECRET")
	if tenantID == "" || clientID == "" || clientSecret == "" {
		return fmt.Errorf("azure credentials required: set --tenant-id/--client-id/--client-secret or the AZURE_TENANT_ID/AZURE_CLIENT_ID/AZURE_CLIENT_SECRET environment variables")
	}
	if flags.billingAccountID == "" {
		return fmt.Errorf("--billing-account-id is required for azure")
	}

	start, end, err := billing.CycleBounds(flags.month)
	if err != nil {
		return err
	}
	log := logger.New(flags.logLevel)

	client, err := azure.NewClient(tenantID, clientID, clientSecret, &azure.Options{
		China:            flags.china,
		BillingAccountID: flags.billingAccountID,
	}, log)
	if err != nil {
		return err
	}

	operationURL, err := client.RequestReport(cmd.Context(), start, end)
	if err != nil {
		return err
	}
	log.Info("Report generation started", "operation_url", operationURL)

	downloadURL, err := client.PollUntilReady(cmd.Context(), operationURL,
		azure.DefaultMaxChecks, azure.DefaultPollInterval)
	if err != nil {
		return err
	}

	seq, closer, err := client.DownloadReport(cmd.Context(), downloadURL)
	if err != nil {
		return err
	}
	defer closer.Close()

	var records []billing.Record
	for record, err := range seq {
		if err != nil {
			log.Warn("Skipping malformed report row", "error", err)
			continue
		}
		records = append(records, record)
	}

	return writeRecords(cmd, flags, log, records)
}

// writeRecords writes the CSV file. A month with no billing data is a
// success: the header-only file is still written and a warning is logged.
func writeRecords(cmd *cobra.Command, flags *exportFlags, log *logger.Logger, records []billing.Record) error {
	output := flags.output
	if output == "" {
		output = fmt.Sprintf("%s_billing_%s.csv", flags.provider, flags.month)
	}
	if err := export.WriteRecords(output, records); err != nil {
		return err
	}

	if len(records) == 0 {
		log.Warn("No billing data found", "month", flags.month)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", len(records), output)
	return nil
}

func orEnv(value, envKey string) string {
	if value != "" {
		return value
	}
	return os.Getenv(envKey)
}
