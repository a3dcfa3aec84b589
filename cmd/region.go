package main

import (
	"fmt"

	"github.com/01000101/cloudbridge/pkg/cloud"

	"github.com/spf13/cobra"
)

var showZones bool

func newRegionCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "region",
		Short: "Inspect regions",
	}
	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List regions",
		Args:  cobra.NoArgs,
		RunE:  runRegionList,
	}
	listCmd.Flags().BoolVar(&showZones, "zones", false, "Also list the placement zones of each region")
	addPagingFlags(listCmd)
	cmd.AddCommand(listCmd)
	return cmd
}

func newInstanceTypeCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "instance-type",
		Aliases: []string{"instancetype"},
		Short:   "Inspect instance types",
	}
	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List instance types",
		Args:  cobra.NoArgs,
		RunE:  runInstanceTypeList,
	}
	addPagingFlags(listCmd)
	cmd.AddCommand(listCmd)
	return cmd
}

func runRegionList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	return printPage[cloud.Region](cmd.Context(), a.provider.Regions(), "regions", func(r cloud.Region) string {
		line := fmt.Sprintf("%-16s %s", r.Name(), r.Endpoint())
		if !showZones {
			return line
		}
		zones, err := r.Zones(cmd.Context())
		if err != nil {
			a.logger.WithError(err).WithField("region", r.Name()).Warn("Failed to list zones")
			return line
		}
		for _, z := range zones {
			line += fmt.Sprintf("\n  %-18s %s", z.Name, z.State)
		}
		return line
	})
}

func runInstanceTypeList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	return printPage[cloud.InstanceType](cmd.Context(), a.provider.InstanceTypes(), "instance types", func(t cloud.InstanceType) string {
		return fmt.Sprintf("%-16s %-6s vcpus=%-3d ram=%-7dMiB disks=%dx (%d GiB)",
			t.Name(), t.Family(), t.VCPUs(), t.RAM(), t.NumEphemeralDisks(), t.SizeEphemeralDisks())
	})
}
