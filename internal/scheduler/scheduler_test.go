package scheduler_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/01000101/cloudbridge/internal/ec2fake"
	"github.com/01000101/cloudbridge/internal/scheduler"
	cbaws "github.com/01000101/cloudbridge/pkg/aws"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/config"
	"github.com/01000101/cloudbridge/pkg/models"
	"github.com/01000101/cloudbridge/pkg/storage"

	"github.com/aws/aws-sdk-go/aws/awserr"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

type fixture struct {
	provider *cbaws.Provider
	fake     *ec2fake.EC2
	ledger   *storage.FileStorage
	sched    *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newRegionFixture(t, "us-east-1",
		storage.NewFileStorage(filepath.Join(t.TempDir(), "resources.json")))
}

// newRegionFixture builds a provider over its own fake region, sharing the
// given ledger
func newRegionFixture(t *testing.T, region string, ledger *storage.FileStorage) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fake := ec2fake.New(region)
	p, err := cbaws.NewProvider(config.AWSConfig{Region: region},
		cbaws.WithEC2Client(fake),
		cbaws.WithLogger(logger),
		cbaws.WithWaitPolling(time.Millisecond, 5*time.Second),
		cbaws.WithImageCreateRetry(3, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return &fixture{
		provider: p,
		fake:     fake,
		ledger:   ledger,
		sched:    scheduler.NewScheduler(p, ledger, logger),
	}
}

func (f *fixture) record(t *testing.T, r cloud.Resource) {
	t.Helper()
	if err := f.ledger.Save(r); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kp, err := f.provider.Security().KeyPairs().Create(ctx, "reconcile-kp")
	if err != nil {
		t.Fatal(err)
	}
	sg, err := f.provider.Security().SecurityGroups().Create(ctx, "reconcile-sg", "", "")
	if err != nil {
		t.Fatal(err)
	}
	f.record(t, kp)
	f.record(t, sg)

	removed, err := f.sched.Reconcile(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("Reconcile() = %d, %v; want 0, nil", removed, err)
	}

	if err := kp.Delete(ctx); err != nil {
		t.Fatal(err)
	}
	removed, err = f.sched.Reconcile(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("Reconcile() = %d, %v; want 1, nil", removed, err)
	}

	records, _ := f.ledger.List("")
	if len(records) != 1 || records[0].ID != sg.ID() {
		t.Errorf("ledger = %+v, want only the security group", records)
	}
}

func TestReconcileKeepsRecordsOnLookupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kp, err := f.provider.Security().KeyPairs().Create(ctx, "flaky")
	if err != nil {
		t.Fatal(err)
	}
	f.record(t, kp)
	f.fake.FailNext("DescribeKeyPairs", awserr.New("RequestLimitExceeded", "slow down", nil))

	removed, err := f.sched.Reconcile(ctx)
	if err == nil {
		t.Fatal("expected the transport error to be reported")
	}
	var terr *cloud.TransportError
	if !errors.As(err, &terr) {
		t.Errorf("error = %v, want a transport error", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if records, _ := f.ledger.List(""); len(records) != 1 {
		t.Errorf("ledger has %d records, want 1", len(records))
	}
}

func TestCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kp, err := f.provider.Security().KeyPairs().Create(ctx, "cleanup-kp")
	if err != nil {
		t.Fatal(err)
	}
	sg, err := f.provider.Security().SecurityGroups().Create(ctx, "cleanup-sg", "", "")
	if err != nil {
		t.Fatal(err)
	}
	inst, err := f.provider.Instances().Create(ctx, models.LaunchOptions{
		Name:           "cleanup-vm",
		ImageID:        ec2fake.PublicImageID,
		InstanceType:   "t2.nano",
		KeyPairName:    kp.Name(),
		SecurityGroups: []string{sg.ID()},
	})
	if err != nil {
		t.Fatal(err)
	}
	img, err := inst.CreateImage(ctx, "cleanup-image")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []cloud.Resource{kp, sg, inst, img} {
		f.record(t, r)
	}

	deleted, err := f.sched.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}

	if records, _ := f.ledger.List(""); len(records) != 0 {
		t.Errorf("ledger still has %d records", len(records))
	}
	if _, ok, _ := f.provider.Security().SecurityGroups().Find(ctx, "cleanup-sg"); ok {
		t.Error("security group should be deleted")
	}
	if _, ok, _ := f.provider.Security().KeyPairs().Find(ctx, "cleanup-kp"); ok {
		t.Error("key pair should be deleted")
	}
	if found, _ := f.provider.Instances().Get(ctx, models.Filter{IDs: []string{inst.ID()}}); len(found) != 0 {
		t.Error("instance should be terminated")
	}
}

func TestCleanupDropsMissingResources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kp, err := f.provider.Security().KeyPairs().Create(ctx, "gone")
	if err != nil {
		t.Fatal(err)
	}
	f.record(t, kp)
	if err := kp.Delete(ctx); err != nil {
		t.Fatal(err)
	}

	deleted, err := f.sched.Cleanup(ctx)
	if err != nil || deleted != 1 {
		t.Fatalf("Cleanup() = %d, %v; want 1, nil", deleted, err)
	}
}

func TestOtherRegionRecordsAreLeftAlone(t *testing.T) {
	g := NewWithT(t)
	east := newFixture(t)
	west := newRegionFixture(t, "us-west-2", east.ledger)
	ctx := context.Background()

	kp, err := east.provider.Security().KeyPairs().Create(ctx, "east-kp")
	g.Expect(err).NotTo(HaveOccurred())
	east.record(t, kp)

	deleted, err := west.sched.Cleanup(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(deleted).To(BeZero())

	removed, err := west.sched.Reconcile(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(removed).To(BeZero())

	records, err := east.ledger.List("")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(records).To(HaveLen(1))
	g.Expect(records[0].Ref).To(Equal(kp.Ref().String()))

	_, ok, err := east.provider.Security().KeyPairs().Find(ctx, "east-kp")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeTrue(), "the us-east-1 key pair must survive a us-west-2 sweep")
	g.Expect(west.fake.Calls("DeleteKeyPair")).To(BeZero())

	deleted, err = east.sched.Cleanup(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(deleted).To(Equal(1))
}

func TestCleanupBlockStoreAndNetwork(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t)
	ctx := context.Background()

	net, err := f.provider.Network().Networks().Create(ctx, "cleanup-net", "10.1.0.0/16")
	g.Expect(err).NotTo(HaveOccurred())
	subnet, err := net.CreateSubnet(ctx, "cleanup-subnet", "10.1.1.0/24", "")
	g.Expect(err).NotTo(HaveOccurred())
	vol, err := f.provider.BlockStore().Volumes().Create(ctx, models.VolumeOptions{
		Name: "cleanup-vol", Size: 1, Zone: "us-east-1a",
	})
	g.Expect(err).NotTo(HaveOccurred())
	snap, err := vol.CreateSnapshot(ctx, "cleanup-snap", "")
	g.Expect(err).NotTo(HaveOccurred())
	for _, r := range []cloud.Resource{net, subnet, vol, snap} {
		f.record(t, r)
	}

	deleted, err := f.sched.Cleanup(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(deleted).To(Equal(4))

	records, err := f.ledger.List("")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(records).To(BeEmpty())
	_, ok, err := f.provider.Network().Networks().Find(ctx, "cleanup-net")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())
}

func TestStartStop(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t)
	ctx := context.Background()

	kp, err := f.provider.Security().KeyPairs().Create(ctx, "background")
	g.Expect(err).NotTo(HaveOccurred())
	f.record(t, kp)
	g.Expect(kp.Delete(ctx)).To(Succeed())

	f.sched.SetInterval(5 * time.Millisecond)
	f.sched.Start(ctx)
	defer f.sched.Stop()

	g.Eventually(func() int {
		records, _ := f.ledger.List("")
		return len(records)
	}, 2*time.Second, 10*time.Millisecond).Should(BeZero())
}
