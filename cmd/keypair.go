package main

import (
	"fmt"
	"os"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/config"

	"github.com/spf13/cobra"
)

var (
	keyOutput     string
	publicKeyPath string
)

func newKeyPairCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "keypair",
		Short: "Manage SSH key pairs",
	}

	var createCmd = &cobra.Command{
		Use:   "create NAME",
		Short: "Create a key pair",
		Long:  "Create a key pair. Creating an existing name returns the existing pair without private key material.",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeyPairCreate,
	}
	createCmd.Flags().StringVarP(&keyOutput, "output", "o", "", "Write the private key to this file instead of stdout")

	var importCmd = &cobra.Command{
		Use:   "import NAME",
		Short: "Import an existing SSH public key",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeyPairImport,
	}
	importCmd.Flags().StringVarP(&publicKeyPath, "public-key", "k", "", "Path to SSH public key file (required)")
	_ = importCmd.MarkFlagRequired("public-key")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List key pairs",
		Args:  cobra.NoArgs,
		RunE:  runKeyPairList,
	}
	addPagingFlags(listCmd)

	cmd.AddCommand(createCmd, importCmd, listCmd,
		&cobra.Command{
			Use:   "find NAME",
			Short: "Find a key pair by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runKeyPairFind,
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a key pair",
			Args:  cobra.ExactArgs(1),
			RunE:  runKeyPairDelete,
		},
	)
	return cmd
}

func formatKeyPair(kp cloud.KeyPair) string {
	return fmt.Sprintf("%-30s %s", kp.Name(), kp.Fingerprint())
}

func runKeyPairCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	kp, err := a.provider.Security().KeyPairs().Create(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to create key pair: %w", err)
	}
	a.record(kp)

	fmt.Printf("Key pair %s (%s)\n", kp.Name(), kp.Fingerprint())
	if kp.Material() == "" {
		fmt.Println("Key pair already existed; no private key material is available.")
		return nil
	}
	if keyOutput == "" {
		fmt.Println(kp.Material())
		return nil
	}
	if err := os.WriteFile(keyOutput, []byte(kp.Material()), 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	fmt.Printf("Private key written to %s\n", keyOutput)
	return nil
}

func runKeyPairImport(cmd *cobra.Command, args []string) error {
	if err := config.ValidatePublicKeyPath(publicKeyPath); err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	publicKey, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	kp, err := a.provider.Security().KeyPairs().Import(cmd.Context(), args[0], publicKey)
	if err != nil {
		return fmt.Errorf("failed to import key pair: %w", err)
	}
	a.record(kp)

	fmt.Printf("Imported key pair %s (%s)\n", kp.Name(), kp.Fingerprint())
	return nil
}

func runKeyPairList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return printPage[cloud.KeyPair](cmd.Context(), a.provider.Security().KeyPairs(), "key pairs", formatKeyPair)
}

func runKeyPairFind(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	kp, ok, err := a.provider.Security().KeyPairs().Find(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find key pair: %w", err)
	}
	if !ok {
		return fmt.Errorf("key pair %s: %w", args[0], cloud.ErrNotFound)
	}
	fmt.Println(formatKeyPair(kp))
	return nil
}

func runKeyPairDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	kp, ok, err := a.provider.Security().KeyPairs().Find(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find key pair: %w", err)
	}
	if !ok {
		return fmt.Errorf("key pair %s: %w", args[0], cloud.ErrNotFound)
	}
	if err := kp.Delete(cmd.Context()); err != nil {
		return fmt.Errorf("failed to delete key pair: %w", err)
	}
	a.forget(kp)

	fmt.Printf("Key pair %s deleted.\n", args[0])
	return nil
}
