package main

import (
	"fmt"

	"github.com/01000101/cloudbridge/pkg/cloud"

	"github.com/spf13/cobra"
)

var (
	networkCIDR string
	subnetZone  string
)

func newNetworkCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "network",
		Short: "Manage private networks",
	}

	var createCmd = &cobra.Command{
		Use:   "create NAME",
		Short: "Create a private network",
		Args:  cobra.ExactArgs(1),
		RunE:  runNetworkCreate,
	}
	createCmd.Flags().StringVar(&networkCIDR, "cidr", "", "Address block (defaults to 10.0.0.0/16)")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List networks",
		Args:  cobra.NoArgs,
		RunE:  runNetworkList,
	}
	addPagingFlags(listCmd)

	cmd.AddCommand(createCmd, listCmd,
		&cobra.Command{
			Use:   "find NAME",
			Short: "Find a network by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runNetworkFind,
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a network without subnets",
			Args:  cobra.ExactArgs(1),
			RunE:  runNetworkDelete,
		},
	)
	return cmd
}

func newSubnetCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "subnet",
		Short: "Manage subnets",
	}

	var createCmd = &cobra.Command{
		Use:   "create NETWORK_ID NAME CIDR",
		Short: "Create a subnet inside a network",
		Args:  cobra.ExactArgs(3),
		RunE:  runSubnetCreate,
	}
	createCmd.Flags().StringVarP(&subnetZone, "zone", "z", "", "Placement zone")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List subnets",
		Args:  cobra.NoArgs,
		RunE:  runSubnetList,
	}
	addPagingFlags(listCmd)

	cmd.AddCommand(createCmd, listCmd,
		&cobra.Command{
			Use:   "find NAME",
			Short: "Find a subnet by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runSubnetFind,
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a subnet",
			Args:  cobra.ExactArgs(1),
			RunE:  runSubnetDelete,
		},
	)
	return cmd
}

func formatNetwork(n cloud.Network) string {
	name := n.Name()
	if n.IsDefault() {
		name += " (default)"
	}
	return fmt.Sprintf("%-22s %-10s %-18s %s", n.ID(), n.State(), n.CIDR(), name)
}

func formatSubnet(s cloud.Subnet) string {
	return fmt.Sprintf("%-26s %-22s %-18s %-12s %s", s.ID(), s.NetworkID(), s.CIDR(), s.ZoneID(), s.Name())
}

func runNetworkCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	net, err := a.provider.Network().Networks().Create(cmd.Context(), args[0], networkCIDR)
	if err != nil {
		return fmt.Errorf("failed to create network: %w", err)
	}
	a.record(net)

	fmt.Printf("Network %s created (%s).\n", net.ID(), net.CIDR())
	return nil
}

func runNetworkList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return printPage[cloud.Network](cmd.Context(), a.provider.Network().Networks(), "networks", formatNetwork)
}

func runNetworkFind(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	net, ok, err := a.provider.Network().Networks().Find(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find network: %w", err)
	}
	if !ok {
		return fmt.Errorf("network %s: %w", args[0], cloud.ErrNotFound)
	}
	fmt.Println(formatNetwork(net))
	return nil
}

func runNetworkDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.provider.Network().Networks().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete network: %w", err)
	}
	a.forgetID(cloud.KindNetwork, args[0])

	fmt.Printf("Network %s deleted.\n", args[0])
	return nil
}

func runSubnetCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	subnet, err := a.provider.Network().Subnets().Create(cmd.Context(), args[0], args[1], args[2], subnetZone)
	if err != nil {
		return fmt.Errorf("failed to create subnet: %w", err)
	}
	a.record(subnet)

	fmt.Printf("Subnet %s created in %s.\n", subnet.ID(), subnet.ZoneID())
	return nil
}

func runSubnetList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return printPage[cloud.Subnet](cmd.Context(), a.provider.Network().Subnets(), "subnets", formatSubnet)
}

func runSubnetFind(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	subnet, ok, err := a.provider.Network().Subnets().Find(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find subnet: %w", err)
	}
	if !ok {
		return fmt.Errorf("subnet %s: %w", args[0], cloud.ErrNotFound)
	}
	fmt.Println(formatSubnet(subnet))
	return nil
}

func runSubnetDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.provider.Network().Subnets().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete subnet: %w", err)
	}
	a.forgetID(cloud.KindSubnet, args[0])

	fmt.Printf("Subnet %s deleted.\n", args[0])
	return nil
}
