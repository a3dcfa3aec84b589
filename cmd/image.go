package main

import (
	"fmt"

	"github.com/01000101/cloudbridge/pkg/cloud"

	"github.com/spf13/cobra"
)

func newImageCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "image",
		Short: "Manage machine images",
	}

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List images owned by the configured owners",
		Args:  cobra.NoArgs,
		RunE:  runImageList,
	}
	addPagingFlags(listCmd)

	cmd.AddCommand(listCmd,
		&cobra.Command{
			Use:   "find NAME",
			Short: "Find an image by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runImageFind,
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Deregister an image and delete its snapshots",
			Args:  cobra.ExactArgs(1),
			RunE:  runImageDelete,
		},
	)
	return cmd
}

func formatImage(img cloud.Image) string {
	return fmt.Sprintf("%-22s %-10s %s", img.ID(), img.State(), img.Name())
}

func runImageList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return printPage[cloud.Image](cmd.Context(), a.provider.Images(), "images", formatImage)
}

func runImageFind(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	img, ok, err := a.provider.Images().Find(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find image: %w", err)
	}
	if !ok {
		return fmt.Errorf("image %s: %w", args[0], cloud.ErrNotFound)
	}
	fmt.Println(formatImage(img))
	return nil
}

func runImageDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.provider.Images().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	a.forgetID(cloud.KindImage, args[0])

	fmt.Printf("Image %s deleted.\n", args[0])
	return nil
}
