// Package main provides the meshgw-cli command-line tool for managing the
// mesh gateway: config validation and registry inspection.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	meshgateway "github.com/ferro-labs/mesh-gateway"
	"github.com/ferro-labs/mesh-gateway/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "meshgw-cli",
		Short:         "MeshGateway command line tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newValidateCmd(), newRegistryCmd(), newVersionCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := meshgateway.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := meshgateway.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			mode := cfg.Mode
			if mode == "" {
				mode = meshgateway.ModeSequential
			}
			cmd.Printf("✓ Config is valid\n")
			cmd.Printf("  Mode:          %s\n", mode)
			cmd.Printf("  Services:      %d\n", len(cfg.Registry.Services))
			cmd.Printf("  Models:        %d\n", len(cfg.Registry.Models))
			cmd.Printf("  Relationships: %d\n", len(cfg.Registry.Relationships))
			cmd.Printf("  Join records:  %d\n", len(cfg.Registry.JoinRecords))
			return nil
		},
	}
}

func newRegistryCmd() *cobra.Command {
	var cfgPath string

	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the data-mesh registry from a config file",
	}
	registryCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to the gateway config file")
	_ = registryCmd.MarkPersistentFlagRequired("config")

	servicesCmd := &cobra.Command{
		Use:   "services",
		Short: "List registered services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := meshgateway.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSCHEMA URL\tBASE URL")
			for _, s := range cfg.Registry.Services {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.SchemaURL, s.BaseURL)
			}
			return tw.Flush()
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models <service>",
		Short: "List the models of a service, with their relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := meshgateway.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			service := args[0]

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ENDPOINT\tLOOKUP FIELD\tRELATIONSHIPS")
			for _, m := range cfg.Registry.Models {
				if m.Service != service {
					continue
				}
				n := 0
				for _, rel := range cfg.Registry.Relationships {
					if rel.Origin == m.Ref() || rel.Related == m.Ref() {
						n++
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", m.Endpoint, m.LookupField, n)
			}
			return tw.Flush()
		},
	}

	registryCmd.AddCommand(servicesCmd, modelsCmd)
	return registryCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("meshgw-cli " + version.String())
		},
	}
}
