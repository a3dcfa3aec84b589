package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/01000101/cloudbridge/internal/utils"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/spf13/cobra"
)

var (
	launchOpts   models.LaunchOptions
	userDataPath string
	wait         bool
	waitTimeout  string
)

func newInstanceCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "instance",
		Short: "Manage instances",
	}

	var createCmd = &cobra.Command{
		Use:   "create NAME",
		Short: "Launch an instance",
		Args:  cobra.ExactArgs(1),
		RunE:  runInstanceCreate,
	}
	createCmd.Flags().StringVarP(&launchOpts.ImageID, "image", "i", "", "Image id to launch (required)")
	createCmd.Flags().StringVarP(&launchOpts.InstanceType, "instance-type", "t", "", "Instance type (defaults to the configured type)")
	createCmd.Flags().StringVarP(&launchOpts.Zone, "zone", "z", "", "Placement zone")
	createCmd.Flags().StringVarP(&launchOpts.KeyPairName, "key-pair", "k", "", "Key pair name")
	createCmd.Flags().StringSliceVarP(&launchOpts.SecurityGroups, "security-group", "g", nil, "Security group names or ids")
	createCmd.Flags().StringVar(&launchOpts.SubnetID, "subnet-id", "", "Subnet to launch into")
	createCmd.Flags().StringVar(&userDataPath, "user-data", "", "Path to a user data file")
	createCmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the instance is running")
	createCmd.Flags().StringVar(&waitTimeout, "timeout", "", "Maximum time to wait (e.g. 10m)")
	_ = createCmd.MarkFlagRequired("image")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List instances",
		Args:  cobra.NoArgs,
		RunE:  runInstanceList,
	}
	addPagingFlags(listCmd)

	var createImageCmd = &cobra.Command{
		Use:   "create-image ID IMAGE_NAME",
		Short: "Create an image from an instance",
		Args:  cobra.ExactArgs(2),
		RunE:  runInstanceCreateImage,
	}
	createImageCmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the image is available")
	createImageCmd.Flags().StringVar(&waitTimeout, "timeout", "", "Maximum time to wait (e.g. 30m)")

	cmd.AddCommand(createCmd, listCmd, createImageCmd,
		&cobra.Command{
			Use:   "find NAME",
			Short: "Find instances by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runInstanceFind,
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Terminate an instance",
			Args:  cobra.ExactArgs(1),
			RunE:  runInstanceDelete,
		},
		&cobra.Command{
			Use:   "reboot ID",
			Short: "Reboot an instance",
			Args:  cobra.ExactArgs(1),
			RunE:  runInstanceReboot,
		},
		&cobra.Command{
			Use:   "rename ID NAME",
			Short: "Change the name of an instance",
			Args:  cobra.ExactArgs(2),
			RunE:  runInstanceRename,
		},
	)
	return cmd
}

func formatInstance(inst cloud.Instance) string {
	return fmt.Sprintf("%-20s %-24s %-12s %-10s %-12s %s",
		inst.ID(), inst.Name(), inst.InstanceType(), inst.State(),
		inst.PlacementZone().Name, strings.Join(inst.PublicIPs(), ","))
}

func getInstance(cmd *cobra.Command, a *app, id string) (cloud.Instance, error) {
	found, err := a.provider.Instances().Get(cmd.Context(), models.Filter{IDs: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("failed to look up instance: %w", err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("instance %s: %w", id, cloud.ErrNotFound)
	}
	return found[0], nil
}

func runInstanceCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	opts := launchOpts
	opts.Name = args[0]
	if opts.InstanceType == "" {
		opts.InstanceType = a.cfg.DefaultValues.InstanceType
	}
	if userDataPath != "" {
		data, err := os.ReadFile(userDataPath)
		if err != nil {
			return fmt.Errorf("failed to read user data: %w", err)
		}
		opts.UserData = string(data)
	}

	fmt.Printf("Creating instance with configuration:\n")
	fmt.Printf("  Name: %s\n", opts.Name)
	fmt.Printf("  Image: %s\n", opts.ImageID)
	fmt.Printf("  Instance Type: %s\n", opts.InstanceType)
	if opts.Zone != "" {
		fmt.Printf("  Zone: %s\n", opts.Zone)
	}

	inst, err := a.provider.Instances().Create(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	a.record(inst)

	fmt.Printf("\nInstance created successfully!\n")
	fmt.Printf("  Instance ID: %s\n", inst.ID())
	fmt.Printf("  State: %s\n", inst.State())

	if !wait {
		return nil
	}
	ctx, cancel, err := withTimeout(cmd.Context(), waitTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	start := time.Now()
	fmt.Printf("\nWaiting for the instance to be running...\n")
	if err := inst.WaitTillReady(ctx); err != nil {
		return fmt.Errorf("instance did not become ready: %w", err)
	}
	fmt.Printf("Instance running after %s\n", utils.FormatDuration(time.Since(start)))
	fmt.Println(formatInstance(inst))
	return nil
}

func runInstanceList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return printPage[cloud.Instance](cmd.Context(), a.provider.Instances(), "instances", formatInstance)
}

func runInstanceFind(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	found, err := a.provider.Instances().Get(cmd.Context(), models.Filter{Names: []string{args[0]}})
	if err != nil {
		return fmt.Errorf("failed to find instance: %w", err)
	}
	if len(found) == 0 {
		return fmt.Errorf("instance %s: %w", args[0], cloud.ErrNotFound)
	}
	for _, inst := range found {
		fmt.Println(formatInstance(inst))
	}
	return nil
}

func runInstanceDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.provider.Instances().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	a.forgetID(cloud.KindInstance, args[0])

	fmt.Printf("Instance %s is terminating.\n", args[0])
	return nil
}

func runInstanceReboot(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	inst, err := getInstance(cmd, a, args[0])
	if err != nil {
		return err
	}
	if err := inst.Reboot(cmd.Context()); err != nil {
		return fmt.Errorf("failed to reboot instance: %w", err)
	}
	fmt.Printf("Instance %s is rebooting.\n", inst.ID())
	return nil
}

func runInstanceRename(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	inst, err := getInstance(cmd, a, args[0])
	if err != nil {
		return err
	}
	if err := inst.SetName(cmd.Context(), args[1]); err != nil {
		return fmt.Errorf("failed to rename instance: %w", err)
	}
	a.record(inst)

	fmt.Printf("Instance %s renamed to %s.\n", inst.ID(), inst.Name())
	return nil
}

func runInstanceCreateImage(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	inst, err := getInstance(cmd, a, args[0])
	if err != nil {
		return err
	}
	img, err := inst.CreateImage(cmd.Context(), args[1])
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	a.record(img)
	fmt.Printf("Image %s (%s) is %s.\n", img.Name(), img.ID(), img.State())

	if !wait {
		return nil
	}
	ctx, cancel, err := withTimeout(cmd.Context(), waitTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	start := time.Now()
	if err := img.WaitTillReady(ctx); err != nil {
		return fmt.Errorf("image did not become available: %w", err)
	}
	fmt.Printf("Image available after %s\n", utils.FormatDuration(time.Since(start)))
	return nil
}
