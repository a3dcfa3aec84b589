package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/01000101/cloudbridge/internal/scheduler"
	"github.com/01000101/cloudbridge/internal/utils"
	"github.com/01000101/cloudbridge/pkg/aws"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/config"
	"github.com/01000101/cloudbridge/pkg/storage"
	"github.com/01000101/cloudbridge/pkg/webserver"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	logLevel   string
	limit      int
	marker     string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:          "cloudbridge",
		Short:        "Uniform cloud resource management",
		Long:         "Manage key pairs, security groups, images, instances, volumes and networks through one provider-neutral interface",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newKeyPairCmd())
	rootCmd.AddCommand(newSecurityGroupCmd())
	rootCmd.AddCommand(newImageCmd())
	rootCmd.AddCommand(newInstanceCmd())
	rootCmd.AddCommand(newVolumeCmd())
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newNetworkCmd())
	rootCmd.AddCommand(newSubnetCmd())
	rootCmd.AddCommand(newRegionCmd())
	rootCmd.AddCommand(newInstanceTypeCmd())

	var cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every resource recorded in the ledger",
		Long:  "Delete the resources created through this tool, instances first and networks and key pairs last",
		RunE:  runCleanup,
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only HTTP API",
		Long:  "Serve a JSON view of the provider's resources and Prometheus metrics, and keep the ledger reconciled",
		RunE:  runServe,
	}
	serveCmd.Flags().String("listen", "", "Listen address (defaults to listen_addr from the configuration)")

	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(serveCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}

// app bundles what every command needs
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	provider *aws.Provider
	ledger   *storage.FileStorage
}

func newApp() (*app, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	level := getLogLevel(logLevel)
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	provider, err := aws.NewProvider(cfg.AWS,
		aws.WithLogger(logger),
		aws.WithImageOwners(cfg.Images.Owners...),
		aws.WithImageCreateRetry(cfg.Images.CreateAttempts, cfg.Images.CreateInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS provider: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		ledger:   storage.NewFileStorage(cfg.LedgerPath),
	}, nil
}

// record adds a created resource to the ledger; failures only warn
func (a *app) record(r cloud.Resource) {
	if err := a.ledger.Save(r); err != nil {
		a.logger.WithError(err).WithField("ref", r.Ref().String()).Warn("Failed to record resource in ledger")
	}
}

func (a *app) forget(r cloud.Resource) {
	a.forgetID(r.Kind(), r.ID())
}

func (a *app) forgetID(kind cloud.Kind, id string) {
	ref := cloud.Ref{Provider: a.provider.Name(), Region: a.provider.Region(), Kind: kind, ID: id}
	if err := a.ledger.Delete(ref.String()); err != nil {
		a.logger.WithError(err).WithField("ref", ref.String()).Warn("Failed to remove resource from ledger")
	}
}

func getLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// addPagingFlags adds --limit and --marker to a list command
func addPagingFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&limit, "limit", cloud.DefaultPageLimit, "Maximum number of results")
	cmd.Flags().StringVar(&marker, "marker", "", "Return results after this id")
}

// printPage prints one page of a listing with a per-item formatter
func printPage[T cloud.Resource](ctx context.Context, svc cloud.Lister[T], kind string, format func(T) string) error {
	page, err := cloud.ListPage(ctx, svc, limit, marker)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", kind, err)
	}
	if len(page.Items) == 0 {
		fmt.Printf("No %s found.\n", kind)
		return nil
	}

	for _, item := range page.Items {
		fmt.Println(format(item))
	}
	if page.Truncated {
		fmt.Printf("\n%d of %d shown. Next page: --marker %s\n", len(page.Items), page.Total, page.NextMarker)
	}
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	fmt.Printf("Cleaning up resources recorded in %s...\n", a.ledger.Path())
	deleted, err := scheduler.NewScheduler(a.provider, a.ledger, a.logger).Cleanup(cmd.Context())
	fmt.Printf("Deleted %d resources.\n", deleted)
	if err != nil {
		return fmt.Errorf("cleanup incomplete: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.provider.ValidateCredentials(cmd.Context()); err != nil {
		return fmt.Errorf("failed to validate AWS credentials: %w", err)
	}

	addr, _ := cmd.Flags().GetString("listen")
	if addr == "" {
		addr = a.cfg.ListenAddr
	}

	sched := scheduler.NewScheduler(a.provider, a.ledger, a.logger)
	sched.Start(cmd.Context())
	defer sched.Stop()

	server := webserver.NewServer(a.provider, a.ledger, a.logger, addr)
	return server.Start(cmd.Context())
}

// withTimeout bounds ctx by a --timeout flag value; empty means no bound
func withTimeout(ctx context.Context, timeout string) (context.Context, context.CancelFunc, error) {
	if timeout == "" {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	d, err := utils.ParseDuration(timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid timeout: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, cancel, nil
}
