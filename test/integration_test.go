//go:build integration

package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/01000101/cloudbridge/pkg/aws"
	"github.com/01000101/cloudbridge/pkg/cloudtest"
	"github.com/01000101/cloudbridge/pkg/config"

	"github.com/sirupsen/logrus"
)

// newLiveProvider builds a provider against real AWS from the environment
// (and CLOUDBRIDGE_CONFIG when set)
func newLiveProvider(t *testing.T) *aws.Provider {
	t.Helper()
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
		t.Skip("Skipping integration test: AWS credentials not found")
	}

	cfg, err := config.LoadConfig(os.Getenv("CLOUDBRIDGE_CONFIG"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	provider, err := aws.NewProvider(cfg.AWS,
		aws.WithLogger(logger),
		aws.WithImageOwners(cfg.Images.Owners...),
		aws.WithImageCreateRetry(cfg.Images.CreateAttempts, cfg.Images.CreateInterval),
	)
	if err != nil {
		t.Fatalf("Failed to create AWS provider: %v", err)
	}
	return provider
}

func TestAWSProviderIntegration(t *testing.T) {
	provider := newLiveProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := provider.ValidateCredentials(ctx); err != nil {
		t.Fatalf("Invalid AWS credentials: %v", err)
	}

	instances, err := provider.Instances().List(ctx)
	if err != nil {
		t.Fatalf("Failed to list instances: %v", err)
	}
	t.Logf("Found %d instances", len(instances))

	region, err := provider.Regions().Current(ctx)
	if err != nil {
		t.Fatalf("Failed to get current region: %v", err)
	}
	zones, err := region.Zones(ctx)
	if err != nil {
		t.Fatalf("Failed to list zones: %v", err)
	}
	if len(zones) == 0 {
		t.Errorf("region %s has no zones", region.Name())
	}
}

// TestProviderContract runs the shared provider suite against live EC2.
// Instance tests run only when CLOUDBRIDGE_TEST_IMAGE is set since they
// incur charges.
func TestProviderContract(t *testing.T) {
	provider := newLiveProvider(t)

	instanceType := os.Getenv("CLOUDBRIDGE_TEST_INSTANCE_TYPE")
	if instanceType == "" {
		instanceType = "t2.nano"
	}
	cloudtest.RunProviderSuite(t, provider, cloudtest.SuiteOptions{
		ImageID:      os.Getenv("CLOUDBRIDGE_TEST_IMAGE"),
		InstanceType: instanceType,
		Timeout:      30 * time.Minute,
	})
}
