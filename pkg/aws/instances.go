package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/01000101/cloudbridge/internal/utils"
	"github.com/01000101/cloudbridge/internal/waiter"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/sirupsen/logrus"
)

var instanceStates = map[string]models.InstanceState{
	ec2.InstanceStateNamePending:      models.InstanceStatePending,
	ec2.InstanceStateNameRunning:      models.InstanceStateRunning,
	ec2.InstanceStateNameShuttingDown: models.InstanceStateConfiguring,
	ec2.InstanceStateNameStopping:     models.InstanceStateConfiguring,
	ec2.InstanceStateNameStopped:      models.InstanceStateStopped,
	ec2.InstanceStateNameTerminated:   models.InstanceStateTerminated,
}

// liveStates are the EC2 states listed by the instance service. Instances
// shutting down are already deleted as far as callers are concerned.
var liveStates = []string{
	ec2.InstanceStateNamePending,
	ec2.InstanceStateNameRunning,
	ec2.InstanceStateNameStopping,
	ec2.InstanceStateNameStopped,
}

const nameTag = "Name"

// Instance wraps an EC2 instance
type Instance struct {
	p     *Provider
	inst  *ec2.Instance
	state models.InstanceState
}

var _ cloud.Instance = (*Instance)(nil)

func (i *Instance) ID() string                  { return aws.StringValue(i.inst.InstanceId) }
func (i *Instance) Kind() cloud.Kind            { return cloud.KindInstance }
func (i *Instance) Ref() cloud.Ref              { return i.p.ref(cloud.KindInstance, i.ID(), nil) }
func (i *Instance) String() string              { return i.Ref().String() }
func (i *Instance) InstanceType() string        { return aws.StringValue(i.inst.InstanceType) }
func (i *Instance) ImageID() string             { return aws.StringValue(i.inst.ImageId) }
func (i *Instance) KeyPairName() string         { return aws.StringValue(i.inst.KeyName) }
func (i *Instance) State() models.InstanceState { return i.state }

func (i *Instance) Equal(other cloud.Resource) bool {
	return cloud.SameResource(i, other)
}

// Name reads the Name tag from the last describe
func (i *Instance) Name() string {
	return tagValue(i.inst.Tags, nameTag)
}

// SetName writes the Name tag. It is not atomic with respect to other
// writers of the same tag.
func (i *Instance) SetName(ctx context.Context, name string) error {
	if err := utils.ValidateResourceName(name); err != nil {
		return fmt.Errorf("invalid instance name: %w", err)
	}
	if err := i.ensureLive(ctx, "set_name"); err != nil {
		return err
	}
	_, err := i.p.ec2.CreateTagsWithContext(ctx, &ec2.CreateTagsInput{
		Resources: []*string{i.inst.InstanceId},
		Tags:      []*ec2.Tag{{Key: aws.String(nameTag), Value: aws.String(name)}},
	})
	if err != nil {
		return i.fail(ctx, "set_name", err)
	}

	tags := make([]*ec2.Tag, 0, len(i.inst.Tags)+1)
	for _, tag := range i.inst.Tags {
		if aws.StringValue(tag.Key) != nameTag {
			tags = append(tags, tag)
		}
	}
	i.inst.Tags = append(tags, &ec2.Tag{Key: aws.String(nameTag), Value: aws.String(name)})
	return nil
}

func (i *Instance) PublicIPs() []string {
	if i.inst.PublicIpAddress == nil {
		return nil
	}
	return []string{aws.StringValue(i.inst.PublicIpAddress)}
}

func (i *Instance) PrivateIPs() []string {
	if i.inst.PrivateIpAddress == nil {
		return nil
	}
	return []string{aws.StringValue(i.inst.PrivateIpAddress)}
}

func (i *Instance) PlacementZone() models.PlacementZone {
	zone := models.PlacementZone{Region: i.p.region}
	if i.inst.Placement != nil {
		zone.Name = aws.StringValue(i.inst.Placement.AvailabilityZone)
	}
	return zone
}

// SecurityGroups returns handles holding only the group id and name
func (i *Instance) SecurityGroups() []cloud.SecurityGroup {
	groups := make([]cloud.SecurityGroup, 0, len(i.inst.SecurityGroups))
	for _, g := range i.inst.SecurityGroups {
		groups = append(groups, &SecurityGroup{p: i.p, sg: &ec2.SecurityGroup{
			GroupId:   g.GroupId,
			GroupName: g.GroupName,
		}})
	}
	return groups
}

func (i *Instance) MACAddress() (string, error) {
	return "", cloud.NotSupported("mac_address", cloud.KindInstance)
}

// ensureLive fails with ErrNotFound once the instance is shutting down or
// terminated. An instance EC2 does not list yet is let through and left to
// the call that follows.
func (i *Instance) ensureLive(ctx context.Context, op string) error {
	found, err := i.p.instances.describe(ctx, &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{filter("instance-id", i.ID())},
	})
	if err != nil {
		return err
	}
	if len(found) > 0 && !found[0].live() {
		return cloud.NotFound(op, cloud.KindInstance, i.ID())
	}
	return nil
}

func (i *Instance) live() bool {
	return i.inst.State != nil && slices.Contains(liveStates, aws.StringValue(i.inst.State.Name))
}

// fail translates an EC2 error of a handle operation. EC2 reports calls on a
// terminated instance as an incorrect state rather than a missing instance.
func (i *Instance) fail(ctx context.Context, op string, err error) error {
	switch errorCode(err) {
	case "IncorrectState", "IncorrectInstanceState":
		if lerr := i.ensureLive(ctx, op); cloud.IsNotFound(lerr) {
			return lerr
		}
	}
	return translateError(op, cloud.KindInstance, i.ID(), err)
}

func (i *Instance) Reboot(ctx context.Context) error {
	if err := i.ensureLive(ctx, "reboot"); err != nil {
		return err
	}
	if _, err := i.p.ec2.RebootInstancesWithContext(ctx, &ec2.RebootInstancesInput{
		InstanceIds: []*string{i.inst.InstanceId},
	}); err != nil {
		return i.fail(ctx, "reboot", err)
	}
	i.p.log(cloud.KindInstance).WithField("instance_id", i.ID()).Info("Rebooted instance")
	return nil
}

// Terminate terminates the instance. An instance already shutting down or
// terminated is reported as not found.
func (i *Instance) Terminate(ctx context.Context) error {
	if err := i.ensureLive(ctx, "terminate"); err != nil {
		return err
	}
	return i.terminate(ctx)
}

func (i *Instance) terminate(ctx context.Context) error {
	if _, err := i.p.ec2.TerminateInstancesWithContext(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []*string{i.inst.InstanceId},
	}); err != nil {
		return translateError("terminate", cloud.KindInstance, i.ID(), err)
	}
	i.p.log(cloud.KindInstance).WithField("instance_id", i.ID()).Info("Terminated instance")
	return nil
}

func (i *Instance) Delete(ctx context.Context) error {
	return i.p.instances.Delete(ctx, i.ID())
}

// Refresh describes the instance again, terminated or not
func (i *Instance) Refresh(ctx context.Context) error {
	found, err := i.p.instances.describe(ctx, &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{filter("instance-id", i.ID())},
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		i.state = models.InstanceStateUnknown
		return cloud.NotFound("refresh", cloud.KindInstance, i.ID())
	}
	i.inst, i.state = found[0].inst, found[0].state
	return nil
}

// WaitFor polls until the instance reaches one of targets. Reaching one of
// terminals first ends the wait with a *cloud.StateError.
func (i *Instance) WaitFor(ctx context.Context, targets, terminals []models.InstanceState) error {
	return waiter.Poll(ctx, i.p.waitConfig(cloud.KindInstance, i.ID()), func(ctx context.Context) (bool, error) {
		if err := i.Refresh(ctx); err != nil {
			return false, err
		}
		if slices.Contains(targets, i.state) {
			return true, nil
		}
		if slices.Contains(terminals, i.state) {
			return false, &cloud.StateError{Kind: cloud.KindInstance, ID: i.ID(), State: string(i.state)}
		}
		return false, nil
	})
}

func (i *Instance) WaitTillReady(ctx context.Context) error {
	return i.WaitFor(ctx, models.InstanceReadyStates, models.InstanceTerminalStates)
}

var errImageNotVisible = errors.New("image not visible yet")

// CreateImage registers an image of the instance. Both the request and the
// follow-up describe are retried while EC2 has not caught up with a new
// instance or image.
func (i *Instance) CreateImage(ctx context.Context, name string) (cloud.Image, error) {
	if err := utils.ValidateResourceName(name); err != nil {
		return nil, fmt.Errorf("invalid image name: %w", err)
	}
	if err := i.ensureLive(ctx, "create_image"); err != nil {
		return nil, err
	}
	logger := i.p.log(cloud.KindInstance).WithFields(logrus.Fields{
		"instance_id": i.ID(),
		"image_name":  name,
	})
	cfg := waiter.Config{
		Resource:    fmt.Sprintf("image %s of instance %s", name, i.ID()),
		Interval:    i.p.imageCreateInterval,
		MaxAttempts: i.p.imageCreateAttempts,
		Logger:      logger,
	}

	var imageID string
	err := waiter.Retry(ctx, cfg, func(err error) bool {
		return errorCode(err) == "InvalidInstanceID.NotFound"
	}, func(ctx context.Context) error {
		out, err := i.p.ec2.CreateImageWithContext(ctx, &ec2.CreateImageInput{
			InstanceId: i.inst.InstanceId,
			Name:       aws.String(name),
		})
		if err != nil {
			return err
		}
		imageID = aws.StringValue(out.ImageId)
		return nil
	})
	var timeout *waiter.TimeoutError
	if errors.As(err, &timeout) {
		// EC2 kept reporting a missing instance; not a plain not found
		return nil, &cloud.TransportError{Op: "create_image", Err: err}
	}
	if err != nil {
		return nil, i.fail(ctx, "create_image", err)
	}
	logger = logger.WithField("image_id", imageID)
	logger.Info("Requested image")

	var image *Image
	err = waiter.Retry(ctx, cfg, func(err error) bool {
		return errors.Is(err, errImageNotVisible)
	}, func(ctx context.Context) error {
		found, err := i.p.images.describe(ctx, &ec2.DescribeImagesInput{
			Filters: []*ec2.Filter{filter("image-id", imageID)},
		})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return errImageNotVisible
		}
		image = found[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("image %s was requested but cannot be described: %w", imageID, err)
	}
	return image, nil
}

type instanceService struct {
	p *Provider
}

var _ cloud.InstanceService = (*instanceService)(nil)

func (s *instanceService) wrap(inst *ec2.Instance) *Instance {
	state := models.InstanceStateUnknown
	if inst.State != nil {
		if st, ok := instanceStates[aws.StringValue(inst.State.Name)]; ok {
			state = st
		}
	}
	return &Instance{p: s.p, inst: inst, state: state}
}

// describe handles pagination of DescribeInstances
func (s *instanceService) describe(ctx context.Context, input *ec2.DescribeInstancesInput) ([]*Instance, error) {
	var result []*Instance
	err := s.p.ec2.DescribeInstancesPagesWithContext(ctx, input, func(out *ec2.DescribeInstancesOutput, _ bool) bool {
		if out == nil {
			return false
		}
		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				result = append(result, s.wrap(inst))
			}
		}
		return true
	})
	if err != nil {
		return nil, translateError("describe", cloud.KindInstance, "", err)
	}
	return result, nil
}

// collect describes the instances matching filters that are not terminated
func (s *instanceService) collect(ctx context.Context, filters ...*ec2.Filter) ([]cloud.Instance, error) {
	filters = append(filters, filter("instance-state-name", liveStates...))
	found, err := s.describe(ctx, &ec2.DescribeInstancesInput{Filters: filters})
	if err != nil {
		return nil, err
	}
	result := make([]cloud.Instance, 0, len(found))
	for _, inst := range found {
		result = append(result, inst)
	}
	return result, nil
}

// List lists all instances that are not terminated
func (s *instanceService) List(ctx context.Context) ([]cloud.Instance, error) {
	return s.collect(ctx)
}

func (s *instanceService) Get(ctx context.Context, f models.Filter) ([]cloud.Instance, error) {
	if f.IsEmpty() {
		return []cloud.Instance{}, nil
	}
	return s.collect(ctx, filterSet("instance-id", "tag:"+nameTag, f.IDs, f.Names)...)
}

func (s *instanceService) Find(ctx context.Context, name string) (cloud.Instance, bool, error) {
	found, err := s.Get(ctx, models.Filter{Names: []string{name}})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *instanceService) All(ctx context.Context) iter.Seq2[cloud.Instance, error] {
	return cloud.Iterate(ctx, s.List)
}

// Create launches a single instance tagged with opts.Name
func (s *instanceService) Create(ctx context.Context, opts models.LaunchOptions) (cloud.Instance, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid launch options: %w", err)
	}
	groupIDs, err := s.resolveGroups(ctx, opts.SecurityGroups)
	if err != nil {
		return nil, err
	}

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(opts.ImageID),
		InstanceType: aws.String(opts.InstanceType),
		MinCount:     aws.Int64(1),
		MaxCount:     aws.Int64(1),
		TagSpecifications: []*ec2.TagSpecification{{
			ResourceType: aws.String(ec2.ResourceTypeInstance),
			Tags:         []*ec2.Tag{{Key: aws.String(nameTag), Value: aws.String(opts.Name)}},
		}},
	}
	if opts.KeyPairName != "" {
		input.KeyName = aws.String(opts.KeyPairName)
	}
	if len(groupIDs) > 0 {
		input.SecurityGroupIds = aws.StringSlice(groupIDs)
	}
	if opts.SubnetID != "" {
		input.SubnetId = aws.String(opts.SubnetID)
	}
	if opts.Zone != "" {
		input.Placement = &ec2.Placement{AvailabilityZone: aws.String(opts.Zone)}
	}
	if opts.UserData != "" {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(opts.UserData)))
	}

	res, err := s.p.ec2.RunInstancesWithContext(ctx, input)
	if err != nil {
		return nil, translateError("create", cloud.KindInstance, opts.Name, err)
	}
	if len(res.Instances) == 0 {
		return nil, fmt.Errorf("launch of %s returned no instance", opts.Name)
	}

	inst := s.wrap(res.Instances[0])
	s.p.log(cloud.KindInstance).WithFields(logrus.Fields{
		"instance_id":   inst.ID(),
		"name":          opts.Name,
		"instance_type": opts.InstanceType,
		"image_id":      opts.ImageID,
	}).Info("Launched instance")
	return inst, nil
}

// resolveGroups accepts group ids and names and returns ids
func (s *instanceService) resolveGroups(ctx context.Context, refs []string) ([]string, error) {
	var ids, names []string
	for _, ref := range refs {
		if strings.HasPrefix(ref, "sg-") {
			ids = append(ids, ref)
		} else {
			names = append(names, ref)
		}
	}
	if len(names) == 0 {
		return ids, nil
	}

	found, err := s.p.securityGroups.describe(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: filterSet("group-id", "group-name", nil, names),
	})
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(found))
	for _, sg := range found {
		byName[sg.Name()] = sg.ID()
	}
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, cloud.NotFound("resolve", cloud.KindSecurityGroup, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete terminates an instance. Instances that are already terminated or
// shutting down are reported as not found.
func (s *instanceService) Delete(ctx context.Context, id string) error {
	found, err := s.Get(ctx, models.Filter{IDs: []string{id}})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return cloud.NotFound("delete", cloud.KindInstance, id)
	}
	return found[0].(*Instance).terminate(ctx)
}
