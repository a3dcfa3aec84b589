package main

import (
	"fmt"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/spf13/cobra"
)

var (
	volumeOpts          models.VolumeOptions
	snapshotDescription string
	attachDevice        string
)

func newVolumeCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "volume",
		Short: "Manage block volumes",
	}

	var createCmd = &cobra.Command{
		Use:   "create NAME",
		Short: "Create a volume, empty or restored from a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runVolumeCreate,
	}
	createCmd.Flags().Int64VarP(&volumeOpts.Size, "size", "s", 0, "Size in GiB (defaults to the snapshot size)")
	createCmd.Flags().StringVarP(&volumeOpts.Zone, "zone", "z", "", "Placement zone (required)")
	createCmd.Flags().StringVar(&volumeOpts.SnapshotID, "snapshot-id", "", "Snapshot to restore")
	createCmd.Flags().StringVarP(&volumeOpts.Description, "description", "d", "", "Volume description")
	_ = createCmd.MarkFlagRequired("zone")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List volumes",
		Args:  cobra.NoArgs,
		RunE:  runVolumeList,
	}
	addPagingFlags(listCmd)

	var attachCmd = &cobra.Command{
		Use:   "attach ID INSTANCE_ID",
		Short: "Attach a volume to an instance in the same zone",
		Args:  cobra.ExactArgs(2),
		RunE:  runVolumeAttach,
	}
	attachCmd.Flags().StringVar(&attachDevice, "device", "/dev/sdf", "Device name exposed to the instance")

	var snapshotCmd = &cobra.Command{
		Use:   "snapshot ID NAME",
		Short: "Snapshot a volume",
		Args:  cobra.ExactArgs(2),
		RunE:  runVolumeSnapshot,
	}
	snapshotCmd.Flags().StringVarP(&snapshotDescription, "description", "d", "", "Snapshot description")

	cmd.AddCommand(createCmd, listCmd, attachCmd, snapshotCmd,
		&cobra.Command{
			Use:   "find NAME",
			Short: "Find a volume by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runVolumeFind,
		},
		&cobra.Command{
			Use:   "detach ID",
			Short: "Detach a volume",
			Args:  cobra.ExactArgs(1),
			RunE:  runVolumeDetach,
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a volume",
			Args:  cobra.ExactArgs(1),
			RunE:  runVolumeDelete,
		},
	)
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Manage volume snapshots",
	}

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List snapshots owned by this account",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotList,
	}
	addPagingFlags(listCmd)

	cmd.AddCommand(listCmd,
		&cobra.Command{
			Use:   "find NAME",
			Short: "Find a snapshot by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runSnapshotFind,
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a snapshot",
			Args:  cobra.ExactArgs(1),
			RunE:  runSnapshotDelete,
		},
	)
	return cmd
}

func formatVolume(v cloud.Volume) string {
	attached := v.AttachedTo()
	if attached == "" {
		attached = "-"
	}
	return fmt.Sprintf("%-22s %-10s %5dGiB %-12s %-20s %s", v.ID(), v.State(), v.Size(), v.ZoneID(), attached, v.Name())
}

func formatSnapshot(s cloud.Snapshot) string {
	return fmt.Sprintf("%-22s %-10s %5dGiB %-22s %s", s.ID(), s.State(), s.Size(), s.VolumeID(), s.Name())
}

func findVolume(cmd *cobra.Command, a *app, id string) (cloud.Volume, error) {
	found, err := a.provider.BlockStore().Volumes().Get(cmd.Context(), models.Filter{IDs: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("failed to get volume: %w", err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("volume %s: %w", id, cloud.ErrNotFound)
	}
	return found[0], nil
}

func runVolumeCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	opts := volumeOpts
	opts.Name = args[0]
	vol, err := a.provider.BlockStore().Volumes().Create(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}
	a.record(vol)

	fmt.Printf("Volume %s created (%s).\n", vol.ID(), vol.State())
	return nil
}

func runVolumeList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return printPage[cloud.Volume](cmd.Context(), a.provider.BlockStore().Volumes(), "volumes", formatVolume)
}

func runVolumeFind(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	vol, ok, err := a.provider.BlockStore().Volumes().Find(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find volume: %w", err)
	}
	if !ok {
		return fmt.Errorf("volume %s: %w", args[0], cloud.ErrNotFound)
	}
	fmt.Println(formatVolume(vol))
	return nil
}

func runVolumeAttach(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	vol, err := findVolume(cmd, a, args[0])
	if err != nil {
		return err
	}
	if err := vol.Attach(cmd.Context(), args[1], attachDevice); err != nil {
		return fmt.Errorf("failed to attach volume: %w", err)
	}
	fmt.Printf("Volume %s attached to %s as %s.\n", args[0], args[1], attachDevice)
	return nil
}

func runVolumeDetach(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	vol, err := findVolume(cmd, a, args[0])
	if err != nil {
		return err
	}
	if err := vol.Detach(cmd.Context()); err != nil {
		return fmt.Errorf("failed to detach volume: %w", err)
	}
	fmt.Printf("Volume %s detached.\n", args[0])
	return nil
}

func runVolumeSnapshot(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	vol, err := findVolume(cmd, a, args[0])
	if err != nil {
		return err
	}
	snap, err := vol.CreateSnapshot(cmd.Context(), args[1], snapshotDescription)
	if err != nil {
		return fmt.Errorf("failed to snapshot volume: %w", err)
	}
	a.record(snap)

	fmt.Printf("Snapshot %s of %s started.\n", snap.ID(), args[0])
	return nil
}

func runVolumeDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.provider.BlockStore().Volumes().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete volume: %w", err)
	}
	a.forgetID(cloud.KindVolume, args[0])

	fmt.Printf("Volume %s deleted.\n", args[0])
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return printPage[cloud.Snapshot](cmd.Context(), a.provider.BlockStore().Snapshots(), "snapshots", formatSnapshot)
}

func runSnapshotFind(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	snap, ok, err := a.provider.BlockStore().Snapshots().Find(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find snapshot: %w", err)
	}
	if !ok {
		return fmt.Errorf("snapshot %s: %w", args[0], cloud.ErrNotFound)
	}
	fmt.Println(formatSnapshot(snap))
	return nil
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.provider.BlockStore().Snapshots().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	a.forgetID(cloud.KindSnapshot, args[0])

	fmt.Printf("Snapshot %s deleted.\n", args[0])
	return nil
}
