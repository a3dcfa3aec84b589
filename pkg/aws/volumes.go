package aws

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/01000101/cloudbridge/internal/waiter"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/sirupsen/logrus"
)

var volumeStates = map[string]models.VolumeState{
	ec2.VolumeStateCreating:  models.VolumeStateCreating,
	ec2.VolumeStateAvailable: models.VolumeStateAvailable,
	ec2.VolumeStateInUse:     models.VolumeStateInUse,
	ec2.VolumeStateDeleting:  models.VolumeStateConfiguring,
	ec2.VolumeStateDeleted:   models.VolumeStateDeleted,
	ec2.VolumeStateError:     models.VolumeStateError,
}

const descriptionTag = "Description"

// Volume wraps an EBS volume
type Volume struct {
	p     *Provider
	vol   *ec2.Volume
	state models.VolumeState
}

var _ cloud.Volume = (*Volume)(nil)

func (v *Volume) ID() string                { return aws.StringValue(v.vol.VolumeId) }
func (v *Volume) Name() string              { return tagValue(v.vol.Tags, nameTag) }
func (v *Volume) Kind() cloud.Kind          { return cloud.KindVolume }
func (v *Volume) Ref() cloud.Ref            { return v.p.ref(cloud.KindVolume, v.ID(), nil) }
func (v *Volume) String() string            { return v.Ref().String() }
func (v *Volume) Description() string       { return tagValue(v.vol.Tags, descriptionTag) }
func (v *Volume) Size() int64               { return aws.Int64Value(v.vol.Size) }
func (v *Volume) ZoneID() string            { return aws.StringValue(v.vol.AvailabilityZone) }
func (v *Volume) SourceSnapshotID() string  { return aws.StringValue(v.vol.SnapshotId) }
func (v *Volume) State() models.VolumeState { return v.state }

func (v *Volume) Equal(other cloud.Resource) bool {
	return cloud.SameResource(v, other)
}

func (v *Volume) AttachedTo() string {
	if len(v.vol.Attachments) == 0 {
		return ""
	}
	return aws.StringValue(v.vol.Attachments[0].InstanceId)
}

func (v *Volume) Device() string {
	if len(v.vol.Attachments) == 0 {
		return ""
	}
	return aws.StringValue(v.vol.Attachments[0].Device)
}

// Attach attaches the volume to an instance in the same zone as device,
// e.g. /dev/sdf
func (v *Volume) Attach(ctx context.Context, instanceID, device string) error {
	if device == "" {
		return fmt.Errorf("device is required to attach volume %s", v.ID())
	}
	_, err := v.p.ec2.AttachVolumeWithContext(ctx, &ec2.AttachVolumeInput{
		VolumeId:   v.vol.VolumeId,
		InstanceId: aws.String(instanceID),
		Device:     aws.String(device),
	})
	if err != nil {
		return translateError("attach", cloud.KindVolume, v.ID(), err)
	}
	v.p.log(cloud.KindVolume).WithFields(logrus.Fields{
		"volume_id":   v.ID(),
		"instance_id": instanceID,
		"device":      device,
	}).Info("Attached volume")
	return nil
}

func (v *Volume) Detach(ctx context.Context) error {
	if _, err := v.p.ec2.DetachVolumeWithContext(ctx, &ec2.DetachVolumeInput{
		VolumeId: v.vol.VolumeId,
	}); err != nil {
		return translateError("detach", cloud.KindVolume, v.ID(), err)
	}
	v.p.log(cloud.KindVolume).WithField("volume_id", v.ID()).Info("Detached volume")
	return nil
}

func (v *Volume) CreateSnapshot(ctx context.Context, name, description string) (cloud.Snapshot, error) {
	return v.p.snapshots.Create(ctx, name, v.ID(), description)
}

func (v *Volume) Delete(ctx context.Context) error {
	return v.p.volumes.Delete(ctx, v.ID())
}

// Refresh describes the volume again. EC2 forgets deleted volumes, so a
// volume that is gone is left in the deleted state and reported as not found.
func (v *Volume) Refresh(ctx context.Context) error {
	found, err := v.p.volumes.describe(ctx, &ec2.DescribeVolumesInput{
		Filters: []*ec2.Filter{filter("volume-id", v.ID())},
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		v.state = models.VolumeStateDeleted
		return cloud.NotFound("refresh", cloud.KindVolume, v.ID())
	}
	v.vol, v.state = found[0].vol, found[0].state
	return nil
}

// WaitFor polls until the volume reaches one of targets. A volume that
// disappears satisfies a wait for the deleted state.
func (v *Volume) WaitFor(ctx context.Context, targets, terminals []models.VolumeState) error {
	return waiter.Poll(ctx, v.p.waitConfig(cloud.KindVolume, v.ID()), func(ctx context.Context) (bool, error) {
		err := v.Refresh(ctx)
		if cloud.IsNotFound(err) && slices.Contains(targets, models.VolumeStateDeleted) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if slices.Contains(targets, v.state) {
			return true, nil
		}
		if slices.Contains(terminals, v.state) {
			return false, &cloud.StateError{Kind: cloud.KindVolume, ID: v.ID(), State: string(v.state)}
		}
		return false, nil
	})
}

func (v *Volume) WaitTillReady(ctx context.Context) error {
	return v.WaitFor(ctx, models.VolumeReadyStates, models.VolumeTerminalStates)
}

type volumeService struct {
	p *Provider
}

var _ cloud.VolumeService = (*volumeService)(nil)

func (s *volumeService) wrap(vol *ec2.Volume) *Volume {
	state, ok := volumeStates[aws.StringValue(vol.State)]
	if !ok {
		state = models.VolumeStateUnknown
	}
	return &Volume{p: s.p, vol: vol, state: state}
}

func (s *volumeService) describe(ctx context.Context, input *ec2.DescribeVolumesInput) ([]*Volume, error) {
	var result []*Volume
	err := s.p.ec2.DescribeVolumesPagesWithContext(ctx, input, func(out *ec2.DescribeVolumesOutput, _ bool) bool {
		if out == nil {
			return false
		}
		for _, vol := range out.Volumes {
			result = append(result, s.wrap(vol))
		}
		return true
	})
	if err != nil {
		return nil, translateError("describe", cloud.KindVolume, "", err)
	}
	return result, nil
}

func (s *volumeService) collect(ctx context.Context, input *ec2.DescribeVolumesInput) ([]cloud.Volume, error) {
	found, err := s.describe(ctx, input)
	if err != nil {
		return nil, err
	}
	result := make([]cloud.Volume, 0, len(found))
	for _, vol := range found {
		result = append(result, vol)
	}
	return result, nil
}

func (s *volumeService) List(ctx context.Context) ([]cloud.Volume, error) {
	return s.collect(ctx, &ec2.DescribeVolumesInput{})
}

func (s *volumeService) Get(ctx context.Context, f models.Filter) ([]cloud.Volume, error) {
	if f.IsEmpty() {
		return []cloud.Volume{}, nil
	}
	return s.collect(ctx, &ec2.DescribeVolumesInput{
		Filters: filterSet("volume-id", "tag:"+nameTag, f.IDs, f.Names),
	})
}

func (s *volumeService) Find(ctx context.Context, name string) (cloud.Volume, bool, error) {
	found, err := s.Get(ctx, models.Filter{Names: []string{name}})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *volumeService) All(ctx context.Context) iter.Seq2[cloud.Volume, error] {
	return cloud.Iterate(ctx, s.List)
}

// Create creates a volume tagged with opts.Name, optionally restored from a
// snapshot
func (s *volumeService) Create(ctx context.Context, opts models.VolumeOptions) (cloud.Volume, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid volume options: %w", err)
	}

	tags := []*ec2.Tag{{Key: aws.String(nameTag), Value: aws.String(opts.Name)}}
	if opts.Description != "" {
		tags = append(tags, &ec2.Tag{Key: aws.String(descriptionTag), Value: aws.String(opts.Description)})
	}
	input := &ec2.CreateVolumeInput{
		AvailabilityZone: aws.String(opts.Zone),
		TagSpecifications: []*ec2.TagSpecification{{
			ResourceType: aws.String(ec2.ResourceTypeVolume),
			Tags:         tags,
		}},
	}
	if opts.Size > 0 {
		input.Size = aws.Int64(opts.Size)
	}
	if opts.SnapshotID != "" {
		input.SnapshotId = aws.String(opts.SnapshotID)
	}

	out, err := s.p.ec2.CreateVolumeWithContext(ctx, input)
	if err != nil {
		return nil, translateError("create", cloud.KindVolume, opts.Name, err)
	}
	vol := s.wrap(out)
	s.p.log(cloud.KindVolume).WithFields(logrus.Fields{
		"volume_id":   vol.ID(),
		"name":        opts.Name,
		"size":        vol.Size(),
		"zone":        opts.Zone,
		"snapshot_id": opts.SnapshotID,
	}).Info("Created volume")
	return vol, nil
}

// Delete deletes a volume. An attached volume cannot be deleted and the
// error is returned as is.
func (s *volumeService) Delete(ctx context.Context, id string) error {
	if _, err := s.p.ec2.DeleteVolumeWithContext(ctx, &ec2.DeleteVolumeInput{
		VolumeId: aws.String(id),
	}); err != nil {
		return translateError("delete", cloud.KindVolume, id, err)
	}
	s.p.log(cloud.KindVolume).WithField("volume_id", id).Info("Deleted volume")
	return nil
}
