package aws_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/01000101/cloudbridge/internal/ec2fake"
	"github.com/01000101/cloudbridge/internal/waiter"
	cbaws "github.com/01000101/cloudbridge/pkg/aws"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/cloudtest"
	"github.com/01000101/cloudbridge/pkg/config"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/aws/aws-sdk-go/aws/awserr"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

const testRegion = "us-east-1"

func newTestProvider(t *testing.T) (*cbaws.Provider, *ec2fake.EC2) {
	t.Helper()
	fake := ec2fake.New(testRegion)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p, err := cbaws.NewProvider(config.AWSConfig{Region: testRegion},
		cbaws.WithEC2Client(fake),
		cbaws.WithLogger(logger),
		cbaws.WithWaitPolling(time.Millisecond, 5*time.Second),
		cbaws.WithImageCreateRetry(3, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return p, fake
}

func launch(t *testing.T, p *cbaws.Provider, opts models.LaunchOptions) cloud.Instance {
	t.Helper()
	if opts.Name == "" {
		opts.Name = cloudtest.UniqueName("cbtestinstance")
	}
	if opts.ImageID == "" {
		opts.ImageID = ec2fake.PublicImageID
	}
	if opts.InstanceType == "" {
		opts.InstanceType = "t2.nano"
	}
	inst, err := p.Instances().Create(context.Background(), opts)
	if err != nil {
		t.Fatalf("Create instance failed: %v", err)
	}
	cloudtest.DeleteOnCleanup(t, inst)
	return inst
}

func ids[T cloud.Resource](items []T) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID())
	}
	return out
}

func TestProviderSuite(t *testing.T) {
	p, _ := newTestProvider(t)
	cloudtest.RunProviderSuite(t, p, cloudtest.SuiteOptions{
		ImageID:      ec2fake.PublicImageID,
		InstanceType: "t2.nano",
		Timeout:      time.Minute,
	})
}

func TestNewProvider(t *testing.T) {
	g := NewWithT(t)

	_, err := cbaws.NewProvider(config.AWSConfig{})
	g.Expect(err).To(MatchError(ContainSubstring("region is required")))

	_, err = cbaws.NewProvider(config.AWSConfig{Region: testRegion})
	g.Expect(err).To(MatchError(ContainSubstring("AWS_ACCESS_KEY_ID")))

	p, _ := newTestProvider(t)
	g.Expect(p.Name()).To(Equal("aws"))
	g.Expect(p.Region()).To(Equal(testRegion))
	g.Expect(p.ValidateCredentials(context.Background())).To(Succeed())
}

func TestTransportErrorsPassThrough(t *testing.T) {
	g := NewWithT(t)
	p, fake := newTestProvider(t)

	throttled := awserr.New("RequestLimitExceeded", "Request limit exceeded.", nil)
	fake.FailNext("DescribeKeyPairs", throttled)

	_, _, err := p.Security().KeyPairs().Find(context.Background(), "anything")
	var terr *cloud.TransportError
	g.Expect(errors.As(err, &terr)).To(BeTrue())
	var aerr awserr.Error
	g.Expect(errors.As(err, &aerr)).To(BeTrue())
	g.Expect(aerr.Code()).To(Equal("RequestLimitExceeded"))
	g.Expect(cloud.IsNotFound(err)).To(BeFalse())
}

func TestKeyPairImport(t *testing.T) {
	g := NewWithT(t)
	p, _ := newTestProvider(t)
	ctx := context.Background()
	kps := p.Security().KeyPairs()

	name := cloudtest.UniqueName("cbtestimport")
	kp, err := kps.Import(ctx, name, []byte("ssh-rsa AAAAB3NzaC1yc2E test@example"))
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, kp)
	g.Expect(kp.Material()).To(BeEmpty())
	g.Expect(kp.Fingerprint()).NotTo(BeEmpty())

	again, err := kps.Import(ctx, name, []byte("ssh-rsa AAAAB3NzaC1yc2E other@example"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(again.Equal(kp)).To(BeTrue())

	_, err = kps.Import(ctx, cloudtest.UniqueName("cbtestimport"), []byte("not a key"))
	var terr *cloud.TransportError
	g.Expect(errors.As(err, &terr)).To(BeTrue())

	_, err = kps.Create(ctx, "")
	g.Expect(err).To(HaveOccurred())
}

func TestFindMatchesNamesLiterally(t *testing.T) {
	g := NewWithT(t)
	p, _ := newTestProvider(t)
	ctx := context.Background()

	kp, err := p.Security().KeyPairs().Create(ctx, "web-1")
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, kp)

	_, ok, err := p.Security().KeyPairs().Find(ctx, "web*")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	sg, err := p.Security().SecurityGroups().Create(ctx, "app-sg", "", "")
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, sg)
	_, ok, err = p.Security().SecurityGroups().Find(ctx, "app-?g")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	plain := launch(t, p, models.LaunchOptions{Name: "db01"})
	starred := launch(t, p, models.LaunchOptions{Name: "db*"})
	found, ok, err := p.Instances().Find(ctx, "db*")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeTrue())
	g.Expect(found.Equal(starred)).To(BeTrue())
	g.Expect(found.Equal(plain)).To(BeFalse())

	byName, err := p.Instances().Get(ctx, models.Filter{Names: []string{"db?1"}})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(byName).To(BeEmpty())
}

func TestSecurityGroupRules(t *testing.T) {
	g := NewWithT(t)
	p, _ := newTestProvider(t)
	ctx := context.Background()
	groups := p.Security().SecurityGroups()

	web, err := groups.Create(ctx, cloudtest.UniqueName("cbtestweb"), "", "")
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, web)
	g.Expect(web.Description()).To(Equal(web.Name()))
	g.Expect(web.VpcID()).To(Equal(ec2fake.DefaultVpcID))

	db, err := groups.Create(ctx, cloudtest.UniqueName("cbtestdb"), "database", "")
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, db)

	g.Expect(db.AddRule(ctx, models.RuleSpec{Protocol: "tcp", FromPort: 5432, ToPort: 5432, SourceGroupID: web.ID()})).To(Succeed())
	g.Expect(db.AddRule(ctx, models.RuleSpec{Protocol: "tcp", FromPort: 5432, ToPort: 5432, CIDR: "10.0.0.0/8"})).To(Succeed())
	g.Expect(db.AddRule(ctx, models.RuleSpec{Protocol: "tcp", FromPort: 5432, ToPort: 5432, CIDR: "::/0"})).To(Succeed())
	g.Expect(db.AddRule(ctx, models.RuleSpec{Protocol: "all", CIDR: "192.168.0.0/16"})).To(Succeed())

	err = db.AddRule(ctx, models.RuleSpec{Protocol: "tcp", FromPort: 5432, ToPort: 5432, CIDR: "10.0.0.0/8"})
	g.Expect(errors.Is(err, cloud.ErrDuplicate)).To(BeTrue(), "got %v", err)

	err = db.AddRule(ctx, models.RuleSpec{Protocol: "tcp", FromPort: 1, ToPort: 2, CIDR: "10.0.0.0/8", SourceGroupID: web.ID()})
	g.Expect(err).To(MatchError(ContainSubstring("invalid rule")))

	rules, err := db.Rules(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rules).To(HaveLen(4))

	var fromWeb, all cloud.SecurityGroupRule
	for _, r := range rules {
		if r.SourceGroup() != nil {
			fromWeb = r
		}
		if r.Protocol() == "-1" {
			all = r
		}
	}
	g.Expect(fromWeb).NotTo(BeNil())
	g.Expect(fromWeb.SourceGroup().Name()).To(Equal(web.Name()))
	g.Expect(fromWeb.Name()).To(Equal("tcp 5432-5432 from " + web.ID()))
	g.Expect(fromWeb.String()).To(ContainSubstring("group=" + web.ID()))
	g.Expect(all).NotTo(BeNil())
	g.Expect(all.FromPort()).To(Equal(int64(-1)))
	g.Expect(all.ToPort()).To(Equal(int64(-1)))
	g.Expect(fromWeb.Equal(all)).To(BeFalse())

	g.Expect(db.RemoveRule(ctx, fromWeb)).To(Succeed())
	err = db.RemoveRule(ctx, fromWeb)
	g.Expect(cloud.IsNotFound(err)).To(BeTrue(), "got %v", err)

	rules, err = db.Rules(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rules).To(HaveLen(3))
}

func TestRulesLeaveHandleUntouched(t *testing.T) {
	g := NewWithT(t)
	p, _ := newTestProvider(t)
	ctx := context.Background()

	sg, err := p.Security().SecurityGroups().Create(ctx, cloudtest.UniqueName("cbtestpartial"), "full description", "")
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, sg)
	g.Expect(sg.AddRule(ctx, models.RuleSpec{Protocol: "tcp", FromPort: 22, ToPort: 22, CIDR: "10.0.0.0/8"})).To(Succeed())

	inst := launch(t, p, models.LaunchOptions{SecurityGroups: []string{sg.Name()}})
	partial := inst.SecurityGroups()
	g.Expect(partial).To(HaveLen(1))
	g.Expect(partial[0].Description()).To(BeEmpty())

	done := make(chan error, 4)
	for range 4 {
		go func() {
			_, err := partial[0].Rules(ctx)
			done <- err
		}()
	}
	for range 4 {
		g.Expect(<-done).To(Succeed())
	}

	rules, err := partial[0].Rules(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rules).To(HaveLen(1))
	g.Expect(partial[0].Description()).To(BeEmpty(), "Rules must not refresh the handle")
	g.Expect(partial[0].Name()).To(Equal(sg.Name()))
}

func TestInstanceCreateResolvesGroups(t *testing.T) {
	g := NewWithT(t)
	p, _ := newTestProvider(t)
	ctx := context.Background()

	sg, err := p.Security().SecurityGroups().Create(ctx, cloudtest.UniqueName("cbtestsg"), "launch test", "")
	g.Expect(err).NotTo(HaveOccurred())
	kp, err := p.Security().KeyPairs().Create(ctx, cloudtest.UniqueName("cbtestkp"))
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, kp)

	inst := launch(t, p, models.LaunchOptions{
		KeyPairName:    kp.Name(),
		SecurityGroups: []string{sg.Name()},
		Zone:           "us-east-1b",
		UserData:       "#!/bin/sh\necho hello",
	})
	// the instance must be gone before its group can be deleted
	t.Cleanup(func() {
		_ = inst.Delete(context.Background())
		_ = sg.Delete(context.Background())
	})

	g.Expect(inst.KeyPairName()).To(Equal(kp.Name()))
	g.Expect(inst.ImageID()).To(Equal(ec2fake.PublicImageID))
	g.Expect(inst.InstanceType()).To(Equal("t2.nano"))
	g.Expect(inst.PlacementZone()).To(Equal(models.PlacementZone{Name: "us-east-1b", Region: testRegion}))
	g.Expect(inst.State()).To(Equal(models.InstanceStatePending))
	g.Expect(inst.PublicIPs()).To(BeEmpty())

	groups := inst.SecurityGroups()
	g.Expect(groups).To(HaveLen(1))
	g.Expect(groups[0].Equal(sg)).To(BeTrue())
	g.Expect(groups[0].Name()).To(Equal(sg.Name()))

	g.Expect(inst.WaitTillReady(ctx)).To(Succeed())
	g.Expect(inst.PublicIPs()).To(HaveLen(1))
	g.Expect(inst.Reboot(ctx)).To(Succeed())

	_, err = p.Instances().Create(ctx, models.LaunchOptions{
		Name:           cloudtest.UniqueName("cbtestinstance"),
		ImageID:        ec2fake.PublicImageID,
		InstanceType:   "t2.nano",
		SecurityGroups: []string{"no-such-group"},
	})
	g.Expect(cloud.IsNotFound(err)).To(BeTrue(), "got %v", err)

	_, err = p.Instances().Create(ctx, models.LaunchOptions{Name: "x", InstanceType: "t2.nano"})
	g.Expect(err).To(MatchError(ContainSubstring("image id is required")))
}

func TestInstanceWaitForTerminalState(t *testing.T) {
	g := NewWithT(t)
	p, fake := newTestProvider(t)

	inst := launch(t, p, models.LaunchOptions{})
	fake.SetInstanceState(inst.ID(), "terminated")

	err := inst.WaitTillReady(context.Background())
	var serr *cloud.StateError
	g.Expect(errors.As(err, &serr)).To(BeTrue(), "got %v", err)
	g.Expect(serr.State).To(Equal(string(models.InstanceStateTerminated)))

	g.Expect(cloud.IsNotFound(p.Instances().Delete(context.Background(), inst.ID()))).To(BeTrue())
}

func TestTerminatedInstanceHandle(t *testing.T) {
	g := NewWithT(t)
	p, fake := newTestProvider(t)
	ctx := context.Background()
	inst := launch(t, p, models.LaunchOptions{})
	g.Expect(inst.WaitTillReady(ctx)).To(Succeed())

	// a live instance keeps the EC2 error
	fake.FailNext("RebootInstances", awserr.New("IncorrectState", "instance is busy", nil))
	err := inst.Reboot(ctx)
	var terr *cloud.TransportError
	g.Expect(errors.As(err, &terr)).To(BeTrue(), "got %v", err)

	fake.SetInstanceState(inst.ID(), "terminated")
	g.Expect(cloud.IsNotFound(inst.Reboot(ctx))).To(BeTrue())
	g.Expect(cloud.IsNotFound(inst.SetName(ctx, "renamed"))).To(BeTrue())
	g.Expect(cloud.IsNotFound(inst.Terminate(ctx))).To(BeTrue())
	_, err = inst.CreateImage(ctx, cloudtest.UniqueName("cbtestimage"))
	g.Expect(cloud.IsNotFound(err)).To(BeTrue(), "got %v", err)

	g.Expect(fake.Calls("CreateTags")).To(Equal(0))
	g.Expect(fake.Calls("CreateImage")).To(Equal(0))
	g.Expect(fake.Calls("TerminateInstances")).To(Equal(0))
}

func TestCreateImageRetriesUntilInstanceIsVisible(t *testing.T) {
	g := NewWithT(t)
	p, fake := newTestProvider(t)
	ctx := context.Background()
	inst := launch(t, p, models.LaunchOptions{})

	notYet := awserr.New("InvalidInstanceID.NotFound", "The instance ID does not exist", nil)
	fake.FailNext("CreateImage", notYet, notYet)

	image, err := inst.CreateImage(ctx, cloudtest.UniqueName("cbtestimage"))
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, image)
	g.Expect(fake.Calls("CreateImage")).To(Equal(3))

	fake.FailNext("CreateImage", notYet, notYet, notYet)
	_, err = inst.CreateImage(ctx, cloudtest.UniqueName("cbtestimage"))
	var timeout *waiter.TimeoutError
	g.Expect(errors.As(err, &timeout)).To(BeTrue(), "got %v", err)
	g.Expect(cloud.IsNotFound(err)).To(BeFalse())
}

func TestImageDeleteRemovesSnapshots(t *testing.T) {
	g := NewWithT(t)
	p, fake := newTestProvider(t)
	ctx := context.Background()
	inst := launch(t, p, models.LaunchOptions{})

	image, err := inst.CreateImage(ctx, cloudtest.UniqueName("cbtestimage"))
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(image.Delete(ctx)).To(Succeed())
	g.Expect(fake.Calls("DeregisterImage")).To(Equal(1))
	g.Expect(fake.Calls("DeleteSnapshot")).To(Equal(1))

	g.Expect(cloud.IsNotFound(image.Refresh(ctx))).To(BeTrue())
	g.Expect(image.State()).To(Equal(models.ImageStateUnknown))

	err = p.Images().Delete(ctx, ec2fake.PublicImageID)
	var terr *cloud.TransportError
	g.Expect(errors.As(err, &terr)).To(BeTrue(), "images of other owners cannot be deleted, got %v", err)

	public, err := p.Images().Get(ctx, models.Filter{IDs: []string{ec2fake.PublicImageID}})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(public).To(HaveLen(1))

	owned, err := p.Images().List(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(owned).To(BeEmpty())
}

func TestVolumeAttachRules(t *testing.T) {
	g := NewWithT(t)
	p, fake := newTestProvider(t)
	ctx := context.Background()
	inst := launch(t, p, models.LaunchOptions{Zone: "us-east-1a"})
	g.Expect(inst.WaitTillReady(ctx)).To(Succeed())

	volumes := p.BlockStore().Volumes()
	elsewhere, err := volumes.Create(ctx, models.VolumeOptions{Name: "elsewhere", Size: 1, Zone: "us-east-1b"})
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, elsewhere)
	g.Expect(elsewhere.WaitTillReady(ctx)).To(Succeed())

	err = elsewhere.Attach(ctx, inst.ID(), "/dev/sdf")
	var terr *cloud.TransportError
	g.Expect(errors.As(err, &terr)).To(BeTrue(), "volumes attach only within their zone, got %v", err)

	vol, err := volumes.Create(ctx, models.VolumeOptions{Name: "attached", Size: 1, Zone: "us-east-1a"})
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, vol)
	g.Expect(vol.WaitTillReady(ctx)).To(Succeed())
	g.Expect(vol.Attach(ctx, inst.ID(), "/dev/sdf")).To(Succeed())
	g.Expect(vol.Refresh(ctx)).To(Succeed())
	g.Expect(vol.State()).To(Equal(models.VolumeStateInUse))

	err = vol.Delete(ctx)
	g.Expect(errors.As(err, &terr)).To(BeTrue(), "attached volumes cannot be deleted, got %v", err)
	g.Expect(cloud.IsNotFound(err)).To(BeFalse())

	listed, err := volumes.List(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ids(listed)).To(ConsistOf(vol.ID(), elsewhere.ID()))

	// terminating the instance releases its volumes
	g.Expect(inst.Terminate(ctx)).To(Succeed())
	g.Expect(vol.WaitTillReady(ctx)).To(Succeed())
	g.Expect(vol.AttachedTo()).To(BeEmpty())
	g.Expect(vol.Delete(ctx)).To(Succeed())
	g.Expect(fake.Calls("DeleteVolume")).To(Equal(2))
}

func TestSnapshotInUseByImage(t *testing.T) {
	g := NewWithT(t)
	p, fake := newTestProvider(t)
	ctx := context.Background()
	inst := launch(t, p, models.LaunchOptions{})

	image, err := inst.CreateImage(ctx, cloudtest.UniqueName("cbtestimage"))
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, image)

	snapshots, err := p.BlockStore().Snapshots().List(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(snapshots).To(HaveLen(1))
	g.Expect(fake.HasSnapshot(snapshots[0].ID())).To(BeTrue())

	err = snapshots[0].Delete(ctx)
	var terr *cloud.TransportError
	g.Expect(errors.As(err, &terr)).To(BeTrue(), "snapshots backing an image cannot be deleted, got %v", err)

	g.Expect(image.Delete(ctx)).To(Succeed())
	g.Expect(fake.HasSnapshot(snapshots[0].ID())).To(BeFalse())
	g.Expect(cloud.IsNotFound(snapshots[0].Refresh(ctx))).To(BeTrue())
}

func TestNetworkDependencies(t *testing.T) {
	g := NewWithT(t)
	p, fake := newTestProvider(t)
	ctx := context.Background()
	networks := p.Network().Networks()

	listed, err := networks.List(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(listed).To(HaveLen(1))
	g.Expect(listed[0].ID()).To(Equal(ec2fake.DefaultVpcID))
	g.Expect(listed[0].IsDefault()).To(BeTrue())

	_, err = networks.Create(ctx, "bad-range", "10.0.0.0/8")
	g.Expect(err).To(HaveOccurred())

	net, err := networks.Create(ctx, "deps", "10.2.0.0/16")
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, net)

	_, err = net.CreateSubnet(ctx, "outside", "10.3.0.0/24", "")
	g.Expect(err).To(HaveOccurred(), "subnets must fall within their network")

	subnet, err := net.CreateSubnet(ctx, "inside", "10.2.1.0/24", "us-east-1b")
	g.Expect(err).NotTo(HaveOccurred())
	cloudtest.DeleteOnCleanup(t, subnet)
	g.Expect(subnet.ZoneID()).To(Equal("us-east-1b"))

	inst := launch(t, p, models.LaunchOptions{SubnetID: subnet.ID()})
	g.Expect(inst.PlacementZone().Name).To(Equal("us-east-1b"))

	var terr *cloud.TransportError
	err = net.Delete(ctx)
	g.Expect(errors.As(err, &terr)).To(BeTrue(), "networks with subnets cannot be deleted, got %v", err)
	err = subnet.Delete(ctx)
	g.Expect(errors.As(err, &terr)).To(BeTrue(), "subnets with live instances cannot be deleted, got %v", err)

	g.Expect(inst.Delete(ctx)).To(Succeed())
	fake.SetInstanceState(inst.ID(), "terminated")
	g.Expect(subnet.Delete(ctx)).To(Succeed())
	g.Expect(net.Delete(ctx)).To(Succeed())
	g.Expect(fake.Calls("DeleteVpc")).To(Equal(2))

	g.Expect(cloud.IsNotFound(net.Refresh(ctx))).To(BeTrue())
	g.Expect(cloud.IsNotFound(networks.Delete(ctx, net.ID()))).To(BeTrue())
}

func TestRegions(t *testing.T) {
	g := NewWithT(t)
	p, _ := newTestProvider(t)
	ctx := context.Background()

	regions, err := p.Regions().List(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(regions).To(HaveLen(len(ec2fake.Regions)))

	current, err := p.Regions().Current(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(current.Name()).To(Equal(testRegion))
	g.Expect(current.Endpoint()).To(Equal("ec2.us-east-1.amazonaws.com"))

	zones, err := current.Zones(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(zones).To(HaveLen(3))
	g.Expect(zones[0]).To(Equal(models.PlacementZone{Name: "us-east-1a", Region: testRegion, State: "available"}))

	other, ok, err := p.Regions().Get(ctx, "eu-west-1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeTrue())
	g.Expect(other.Equal(current)).To(BeFalse())
	zones, err = other.Zones(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(zones[0].Region).To(Equal("eu-west-1"))

	_, ok, err = p.Regions().Get(ctx, "mars-north-1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())
}

func TestInstanceTypes(t *testing.T) {
	g := NewWithT(t)
	p, fake := newTestProvider(t)
	ctx := context.Background()

	types, err := p.InstanceTypes().List(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(types).To(HaveLen(7))
	g.Expect(fake.Calls("DescribeInstanceTypes")).To(Equal(3))

	it, ok, err := p.InstanceTypes().Find(ctx, "m5d.large")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeTrue())
	g.Expect(it.Family()).To(Equal("m5d"))
	g.Expect(it.VCPUs()).To(Equal(int64(2)))
	g.Expect(it.RAM()).To(Equal(int64(8192)))
	g.Expect(it.NumEphemeralDisks()).To(Equal(int64(1)))
	g.Expect(it.SizeEphemeralDisks()).To(Equal(int64(75)))

	_, ok, err = p.InstanceTypes().Find(ctx, "x9.huge")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())
}

func TestListPageOverInstances(t *testing.T) {
	g := NewWithT(t)
	p, _ := newTestProvider(t)
	for i := 0; i < 3; i++ {
		launch(t, p, models.LaunchOptions{})
	}

	page, err := cloud.ListPage[cloud.Instance](context.Background(), p.Instances(), 2, "")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(page.Items).To(HaveLen(2))
	g.Expect(page.Truncated).To(BeTrue())
	g.Expect(page.Total).To(Equal(3))

	page, err = cloud.ListPage[cloud.Instance](context.Background(), p.Instances(), 2, page.NextMarker)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(page.Items).To(HaveLen(1))
	g.Expect(page.Truncated).To(BeFalse())
}
