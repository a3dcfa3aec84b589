package cloudtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	. "github.com/onsi/gomega"
)

// SuiteOptions configures RunProviderSuite
type SuiteOptions struct {
	// ImageID and InstanceType enable the instance and image tests
	ImageID      string
	InstanceType string
	// Timeout bounds each subtest
	Timeout time.Duration
}

// RunProviderSuite checks the behavior every cloud.Provider must share:
// create/find/list/delete round trips and iteration for every service, plus
// the key pair duplicate policy, security group rules and the lifecycles of
// instances, volumes and networks.
func RunProviderSuite(t *testing.T, p cloud.Provider, opts SuiteOptions) {
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Minute
	}
	ctx := func(t *testing.T) context.Context {
		c, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		t.Cleanup(cancel)
		return c
	}

	t.Run("KeyPairLifecycle", func(t *testing.T) {
		testKeyPairLifecycle(ctx(t), t, p.Security().KeyPairs())
	})
	t.Run("KeyPairDuplicateCreate", func(t *testing.T) {
		testKeyPairDuplicate(ctx(t), t, p.Security().KeyPairs())
	})
	t.Run("SecurityGroupLifecycle", func(t *testing.T) {
		testSecurityGroupLifecycle(ctx(t), t, p.Security().SecurityGroups())
	})
	t.Run("SecurityGroupCIDRRule", func(t *testing.T) {
		testCIDRRule(ctx(t), t, p.Security().SecurityGroups())
	})
	t.Run("SecurityGroupSelfReference", func(t *testing.T) {
		testSelfReferenceRule(ctx(t), t, p.Security().SecurityGroups())
	})
	t.Run("DeletedGroupInvalidatesRules", func(t *testing.T) {
		testDeletedGroupRules(ctx(t), t, p.Security().SecurityGroups())
	})
	t.Run("FindUnknownName", func(t *testing.T) {
		testFindUnknown(ctx(t), t, p)
	})
	t.Run("InstanceLifecycle", func(t *testing.T) {
		if opts.ImageID == "" || opts.InstanceType == "" {
			t.Skip("no image or instance type configured")
		}
		testInstanceLifecycle(ctx(t), t, p, opts)
	})
	t.Run("VolumeLifecycle", func(t *testing.T) {
		testVolumeLifecycle(ctx(t), t, p)
	})
	t.Run("VolumeAttachDetach", func(t *testing.T) {
		if opts.ImageID == "" || opts.InstanceType == "" {
			t.Skip("no image or instance type configured")
		}
		testVolumeAttachDetach(ctx(t), t, p, opts)
	})
	t.Run("SnapshotLifecycle", func(t *testing.T) {
		testSnapshotLifecycle(ctx(t), t, p)
	})
	t.Run("NetworkLifecycle", func(t *testing.T) {
		testNetworkLifecycle(ctx(t), t, p.Network())
	})
}

func ids[T cloud.Resource](items []T) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID())
	}
	return out
}

// checkCRUD asserts the find/list/iterate/delete contract for one created
// resource.
func checkCRUD[T cloud.Resource](ctx context.Context, t *testing.T, svc cloud.ResourceService[T], created T) {
	g := NewWithT(t)

	found, ok, err := svc.Find(ctx, created.Name())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeTrue(), "find(%q) should return the created resource", created.Name())
	g.Expect(found.Equal(created)).To(BeTrue())

	byID, err := svc.Get(ctx, models.Filter{IDs: []string{created.ID()}})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ids(byID)).To(ConsistOf(created.ID()))

	listed, err := svc.List(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ids(listed)).To(ContainElement(created.ID()))

	var iterated []T
	for item, err := range svc.All(ctx) {
		g.Expect(err).NotTo(HaveOccurred())
		iterated = append(iterated, item)
	}
	listed, err = svc.List(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ids(iterated)).To(Equal(ids(listed)), "iteration and list should yield the same sequence")

	g.Expect(svc.Delete(ctx, created.ID())).To(Succeed())

	listed, err = svc.List(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ids(listed)).NotTo(ContainElement(created.ID()))

	_, ok, err = svc.Find(ctx, created.Name())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse(), "find should not return a deleted resource")

	err = svc.Delete(ctx, created.ID())
	g.Expect(errors.Is(err, cloud.ErrNotFound)).To(BeTrue(), "second delete should fail with not found, got %v", err)
}

func testKeyPairLifecycle(ctx context.Context, t *testing.T, svc cloud.KeyPairService) {
	g := NewWithT(t)
	kp, err := svc.Create(ctx, UniqueName("cbtestkeypair"))
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, kp)

	g.Expect(kp.Material()).NotTo(BeEmpty())
	g.Expect(kp.String()).To(ContainSubstring(kp.ID()))
	checkCRUD[cloud.KeyPair](ctx, t, svc, kp)
}

func testKeyPairDuplicate(ctx context.Context, t *testing.T, svc cloud.KeyPairService) {
	g := NewWithT(t)
	name := UniqueName("cbtestkeypair")

	kp, err := svc.Create(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, kp)

	recreated, err := svc.Create(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(recreated.Equal(kp)).To(BeTrue(), "recreated key pair should equal the original")
	g.Expect(recreated.Fingerprint()).To(Equal(kp.Fingerprint()))
}

func testSecurityGroupLifecycle(ctx context.Context, t *testing.T, svc cloud.SecurityGroupService) {
	g := NewWithT(t)
	name := UniqueName("cbtestsecgroup")
	sg, err := svc.Create(ctx, name, "cloudbridge test group", "")
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, sg)

	g.Expect(sg.Name()).To(Equal(name))
	g.Expect(sg.Description()).To(Equal("cloudbridge test group"))

	_, err = svc.Create(ctx, name, "duplicate", sg.VpcID())
	g.Expect(errors.Is(err, cloud.ErrDuplicate)).To(BeTrue(), "duplicate create should fail, got %v", err)

	checkCRUD[cloud.SecurityGroup](ctx, t, svc, sg)
}

func testCIDRRule(ctx context.Context, t *testing.T, svc cloud.SecurityGroupService) {
	g := NewWithT(t)
	sg, err := svc.Create(ctx, UniqueName("cbtestsecgroup"), "cidr rule test", "")
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, sg)

	g.Expect(sg.AddRule(ctx, models.RuleSpec{
		Protocol: "tcp", FromPort: 1111, ToPort: 1111, CIDR: "0.0.0.0/0",
	})).To(Succeed())

	rules, err := sg.Rules(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	var matching []cloud.SecurityGroupRule
	for _, r := range rules {
		if r.Protocol() == "tcp" && r.FromPort() == 1111 && r.ToPort() == 1111 && r.CIDR() == "0.0.0.0/0" {
			matching = append(matching, r)
		}
	}
	g.Expect(matching).To(HaveLen(1))

	rule := matching[0]
	g.Expect(rule.SourceGroup()).To(BeNil())
	g.Expect(rule.Parent().Equal(sg)).To(BeTrue())
	for _, field := range []string{sg.ID(), "tcp", "1111"} {
		g.Expect(rule.String()).To(ContainSubstring(field))
	}
	parsed, err := cloud.ParseRef(rule.String())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(parsed.Equal(rule.Ref())).To(BeTrue())

	g.Expect(sg.RemoveRule(ctx, rule)).To(Succeed())
	rules, err = sg.Rules(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rules).To(BeEmpty())
}

func testSelfReferenceRule(ctx context.Context, t *testing.T, svc cloud.SecurityGroupService) {
	g := NewWithT(t)
	sg, err := svc.Create(ctx, UniqueName("cbtestsecgroup"), "self reference test", "")
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, sg)

	g.Expect(sg.AddRule(ctx, models.RuleSpec{SourceGroupID: sg.ID()})).To(Succeed())

	rules, err := sg.Rules(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rules).To(HaveLen(1))
	g.Expect(rules[0].CIDR()).To(BeEmpty())
	g.Expect(rules[0].SourceGroup()).NotTo(BeNil())
	g.Expect(rules[0].SourceGroup().Name()).To(Equal(sg.Name()))
	g.Expect(rules[0].SourceGroup().Equal(sg)).To(BeTrue())
}

func testDeletedGroupRules(ctx context.Context, t *testing.T, svc cloud.SecurityGroupService) {
	g := NewWithT(t)
	sg, err := svc.Create(ctx, UniqueName("cbtestsecgroup"), "delete with rules test", "")
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, sg)

	g.Expect(sg.AddRule(ctx, models.RuleSpec{
		Protocol: "tcp", FromPort: 22, ToPort: 22, CIDR: "10.0.0.0/8",
	})).To(Succeed())
	g.Expect(sg.Delete(ctx)).To(Succeed())

	_, err = sg.Rules(ctx)
	g.Expect(errors.Is(err, cloud.ErrNotFound)).To(BeTrue(), "rules of a deleted group should fail with not found, got %v", err)
}

func testFindUnknown(ctx context.Context, t *testing.T, p cloud.Provider) {
	g := NewWithT(t)
	name := UniqueName("cbtestnever")

	_, ok, err := p.Security().KeyPairs().Find(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	_, ok, err = p.Security().SecurityGroups().Find(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	_, ok, err = p.Images().Find(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	_, ok, err = p.Instances().Find(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	_, ok, err = p.BlockStore().Volumes().Find(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	_, ok, err = p.BlockStore().Snapshots().Find(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	_, ok, err = p.Network().Networks().Find(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	_, ok, err = p.Network().Subnets().Find(ctx, name)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeFalse())

	found, err := p.Images().Get(ctx, models.Filter{Names: []string{name}})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(found).To(BeEmpty())
}

func testInstanceLifecycle(ctx context.Context, t *testing.T, p cloud.Provider, opts SuiteOptions) {
	g := NewWithT(t)
	name := UniqueName("cbtestinstance")

	inst, err := p.Instances().Create(ctx, models.LaunchOptions{
		Name:         name,
		ImageID:      opts.ImageID,
		InstanceType: opts.InstanceType,
	})
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, inst)

	g.Expect(inst.Name()).To(Equal(name))
	g.Expect(inst.WaitTillReady(ctx)).To(Succeed())
	g.Expect(inst.State()).To(Equal(models.InstanceStateRunning))
	g.Expect(inst.PrivateIPs()).NotTo(BeEmpty())

	_, err = inst.MACAddress()
	g.Expect(errors.Is(err, cloud.ErrNotSupported)).To(BeTrue())

	renamed := UniqueName("cbtestrenamed")
	g.Expect(inst.SetName(ctx, renamed)).To(Succeed())
	g.Expect(inst.Name()).To(Equal(renamed))
	found, ok, err := p.Instances().Find(ctx, renamed)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ok).To(BeTrue())
	g.Expect(found.Equal(inst)).To(BeTrue())

	image, err := inst.CreateImage(ctx, UniqueName("cbtestimage"))
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, image)
	g.Expect(image.WaitTillReady(ctx)).To(Succeed())
	g.Expect(image.State()).To(Equal(models.ImageStateAvailable))

	checkCRUD[cloud.Image](ctx, t, p.Images(), image)
	checkCRUD[cloud.Instance](ctx, t, p.Instances(), inst)
	checkDestroyedInstance(ctx, t, inst)
}

// checkDestroyedInstance asserts that every operation on the handle of a
// deleted instance fails with ErrNotFound.
func checkDestroyedInstance(ctx context.Context, t *testing.T, inst cloud.Instance) {
	g := NewWithT(t)
	calls := []struct {
		name string
		call func() error
	}{
		{"Terminate", func() error { return inst.Terminate(ctx) }},
		{"Reboot", func() error { return inst.Reboot(ctx) }},
		{"SetName", func() error { return inst.SetName(ctx, UniqueName("cbtestrenamed")) }},
		{"CreateImage", func() error {
			image, err := inst.CreateImage(ctx, UniqueName("cbtestimage"))
			if err == nil {
				DeleteOnCleanup(t, image)
			}
			return err
		}},
		{"Delete", func() error { return inst.Delete(ctx) }},
	}
	for _, c := range calls {
		err := c.call()
		g.Expect(errors.Is(err, cloud.ErrNotFound)).To(BeTrue(), "%s on a deleted instance should fail with not found, got %v", c.name, err)
	}
}

// firstZone returns a zone of the provider's current region
func firstZone(ctx context.Context, t *testing.T, p cloud.Provider) string {
	g := NewWithT(t)
	region, err := p.Regions().Current(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	zones, err := region.Zones(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(zones).NotTo(BeEmpty())
	return zones[0].Name
}

func testVolumeLifecycle(ctx context.Context, t *testing.T, p cloud.Provider) {
	g := NewWithT(t)
	name := UniqueName("cbtestvolume")
	svc := p.BlockStore().Volumes()

	vol, err := svc.Create(ctx, models.VolumeOptions{
		Name:        name,
		Size:        1,
		Zone:        firstZone(ctx, t, p),
		Description: "cloudbridge test volume",
	})
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, vol)

	g.Expect(vol.WaitTillReady(ctx)).To(Succeed())
	g.Expect(vol.State()).To(Equal(models.VolumeStateAvailable))
	g.Expect(vol.Name()).To(Equal(name))
	g.Expect(vol.Size()).To(Equal(int64(1)))
	g.Expect(vol.Description()).To(Equal("cloudbridge test volume"))
	g.Expect(vol.AttachedTo()).To(BeEmpty())
	g.Expect(vol.String()).To(ContainSubstring(vol.ID()))

	checkCRUD[cloud.Volume](ctx, t, svc, vol)
	g.Expect(vol.WaitFor(ctx, []models.VolumeState{models.VolumeStateDeleted}, []models.VolumeState{models.VolumeStateError})).To(Succeed())
}

func testVolumeAttachDetach(ctx context.Context, t *testing.T, p cloud.Provider, opts SuiteOptions) {
	g := NewWithT(t)
	inst, err := p.Instances().Create(ctx, models.LaunchOptions{
		Name:         UniqueName("cbtestvolops"),
		ImageID:      opts.ImageID,
		InstanceType: opts.InstanceType,
	})
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, inst)
	g.Expect(inst.WaitTillReady(ctx)).To(Succeed())

	vol, err := p.BlockStore().Volumes().Create(ctx, models.VolumeOptions{
		Name: UniqueName("cbtestattach"),
		Size: 1,
		Zone: inst.PlacementZone().Name,
	})
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, vol)
	g.Expect(vol.WaitTillReady(ctx)).To(Succeed())

	g.Expect(vol.Attach(ctx, inst.ID(), "/dev/sdf")).To(Succeed())
	g.Expect(vol.WaitFor(ctx, []models.VolumeState{models.VolumeStateInUse}, models.VolumeTerminalStates)).To(Succeed())
	g.Expect(vol.AttachedTo()).To(Equal(inst.ID()))
	g.Expect(vol.Device()).To(Equal("/dev/sdf"))

	g.Expect(vol.Detach(ctx)).To(Succeed())
	g.Expect(vol.WaitTillReady(ctx)).To(Succeed())
	g.Expect(vol.AttachedTo()).To(BeEmpty())
}

func testSnapshotLifecycle(ctx context.Context, t *testing.T, p cloud.Provider) {
	g := NewWithT(t)
	zone := firstZone(ctx, t, p)
	vol, err := p.BlockStore().Volumes().Create(ctx, models.VolumeOptions{
		Name: UniqueName("cbtestsnapvol"),
		Size: 1,
		Zone: zone,
	})
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, vol)
	g.Expect(vol.WaitTillReady(ctx)).To(Succeed())

	name := UniqueName("cbtestsnapshot")
	snap, err := vol.CreateSnapshot(ctx, name, "cloudbridge test snapshot")
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, snap)
	g.Expect(snap.WaitTillReady(ctx)).To(Succeed())
	g.Expect(snap.State()).To(Equal(models.SnapshotStateAvailable))
	g.Expect(snap.Name()).To(Equal(name))
	g.Expect(snap.VolumeID()).To(Equal(vol.ID()))
	g.Expect(snap.Description()).To(Equal("cloudbridge test snapshot"))

	restored, err := snap.CreateVolume(ctx, models.VolumeOptions{Name: UniqueName("cbtestrestored"), Zone: zone})
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, restored)
	g.Expect(restored.SourceSnapshotID()).To(Equal(snap.ID()))
	g.Expect(restored.Size()).To(Equal(snap.Size()))

	checkCRUD[cloud.Snapshot](ctx, t, p.BlockStore().Snapshots(), snap)
	g.Expect(cloud.IsNotFound(snap.Refresh(ctx))).To(BeTrue())
	g.Expect(snap.State()).To(Equal(models.SnapshotStateUnknown))
}

func testNetworkLifecycle(ctx context.Context, t *testing.T, svc cloud.NetworkingService) {
	g := NewWithT(t)
	name := UniqueName("cbtestnetwork")
	net, err := svc.Networks().Create(ctx, name, "")
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, net)

	g.Expect(net.Name()).To(Equal(name))
	g.Expect(net.CIDR()).To(Equal(models.DefaultNetworkCIDR))
	g.Expect(net.IsDefault()).To(BeFalse())
	g.Eventually(func() (models.NetworkState, error) {
		err := net.Refresh(ctx)
		return net.State(), err
	}).WithTimeout(2 * time.Minute).WithPolling(time.Second).Should(Equal(models.NetworkStateAvailable))

	subnetName := UniqueName("cbtestsubnet")
	subnet, err := net.CreateSubnet(ctx, subnetName, "10.0.0.0/24", "")
	g.Expect(err).NotTo(HaveOccurred())
	DeleteOnCleanup(t, subnet)
	g.Expect(subnet.Name()).To(Equal(subnetName))
	g.Expect(subnet.NetworkID()).To(Equal(net.ID()))
	g.Expect(subnet.CIDR()).To(Equal("10.0.0.0/24"))

	_, err = net.CreateSubnet(ctx, UniqueName("cbtestsubnet"), "10.0.0.0/25", "")
	g.Expect(err).To(HaveOccurred(), "overlapping subnets should be rejected")

	inNetwork, err := net.Subnets(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ids(inNetwork)).To(ConsistOf(subnet.ID()))

	g.Expect(net.Delete(ctx)).NotTo(Succeed(), "a network with subnets cannot be deleted")

	checkCRUD[cloud.Subnet](ctx, t, svc.Subnets(), subnet)
	checkCRUD[cloud.Network](ctx, t, svc.Networks(), net)
}
