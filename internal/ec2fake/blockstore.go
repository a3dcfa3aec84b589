package ec2fake

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
)

func (f *EC2) findVolume(id string) *ec2.Volume {
	for _, vol := range f.volumes {
		if aws.StringValue(vol.VolumeId) == id {
			return vol
		}
	}
	return nil
}

func (f *EC2) findSnapshot(id string) *ec2.Snapshot {
	for _, snap := range f.snapshots {
		if aws.StringValue(snap.SnapshotId) == id {
			return snap
		}
	}
	return nil
}

// HasSnapshot reports whether a snapshot still exists
func (f *EC2) HasSnapshot(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findSnapshot(id) != nil
}

// detachAll releases the volumes attached to an instance. The lock must be
// held.
func (f *EC2) detachAll(instanceID string) {
	for _, vol := range f.volumes {
		if len(vol.Attachments) > 0 && aws.StringValue(vol.Attachments[0].InstanceId) == instanceID {
			vol.Attachments = nil
			vol.State = aws.String(ec2.VolumeStateAvailable)
		}
	}
}

func (f *EC2) CreateVolumeWithContext(_ aws.Context, input *ec2.CreateVolumeInput, _ ...request.Option) (*ec2.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateVolume"); err != nil {
		return nil, err
	}

	zone := aws.StringValue(input.AvailabilityZone)
	if !strings.HasPrefix(zone, f.region) || len(zone) != len(f.region)+1 {
		return nil, errorf("InvalidParameterValue", "Invalid availability zone: [%s]", zone)
	}
	size := aws.Int64Value(input.Size)
	if id := aws.StringValue(input.SnapshotId); id != "" {
		snap := f.findSnapshot(id)
		if snap == nil {
			return nil, errorf("InvalidSnapshot.NotFound", "The snapshot '%s' does not exist.", id)
		}
		if size == 0 {
			size = aws.Int64Value(snap.VolumeSize)
		}
		if size < aws.Int64Value(snap.VolumeSize) {
			return nil, errorf("InvalidParameterValue", "Volume of %d GiB is smaller than snapshot '%s'", size, id)
		}
	}
	if size < 1 || size > 16384 {
		return nil, errorf("InvalidParameterValue", "Volume size must be between 1 and 16384 GiB, got %d", size)
	}

	vol := &ec2.Volume{
		VolumeId:         aws.String(newID("vol")),
		AvailabilityZone: aws.String(zone),
		Size:             aws.Int64(size),
		SnapshotId:       input.SnapshotId,
		VolumeType:       aws.String(ec2.VolumeTypeGp2),
		State:            aws.String(ec2.VolumeStateCreating),
		CreateTime:       aws.Time(time.Now()),
		Tags:             tagsFrom(input.TagSpecifications, ec2.ResourceTypeVolume),
	}
	f.volumes = append(f.volumes, vol)
	return copyOf(vol), nil
}

func (f *EC2) DescribeVolumesWithContext(_ aws.Context, input *ec2.DescribeVolumesInput, _ ...request.Option) (*ec2.DescribeVolumesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeVolumes"); err != nil {
		return nil, err
	}

	for _, id := range input.VolumeIds {
		if f.findVolume(aws.StringValue(id)) == nil {
			return nil, errorf("InvalidVolume.NotFound", "The volume '%s' does not exist.", aws.StringValue(id))
		}
	}

	out := &ec2.DescribeVolumesOutput{}
	for _, vol := range f.volumes {
		if len(input.VolumeIds) > 0 && !contains(input.VolumeIds, aws.StringValue(vol.VolumeId)) {
			continue
		}
		ok, err := matchFilters(input.Filters, func(name string) ([]string, bool) {
			switch name {
			case "volume-id":
				return []string{aws.StringValue(vol.VolumeId)}, true
			case "status":
				return []string{aws.StringValue(vol.State)}, true
			case "availability-zone":
				return []string{aws.StringValue(vol.AvailabilityZone)}, true
			case "snapshot-id":
				return []string{aws.StringValue(vol.SnapshotId)}, true
			case "attachment.instance-id":
				var ids []string
				for _, a := range vol.Attachments {
					ids = append(ids, aws.StringValue(a.InstanceId))
				}
				return ids, true
			}
			return tagValues(vol.Tags, name)
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out.Volumes = append(out.Volumes, copyOf(vol))
		// volumes become available after they have been observed once
		if aws.StringValue(vol.State) == ec2.VolumeStateCreating {
			vol.State = aws.String(ec2.VolumeStateAvailable)
		}
	}
	return out, nil
}

func (f *EC2) DescribeVolumesPagesWithContext(ctx aws.Context, input *ec2.DescribeVolumesInput, fn func(*ec2.DescribeVolumesOutput, bool) bool, opts ...request.Option) error {
	out, err := f.DescribeVolumesWithContext(ctx, input, opts...)
	if err != nil {
		return err
	}
	fn(out, true)
	return nil
}

func (f *EC2) DeleteVolumeWithContext(_ aws.Context, input *ec2.DeleteVolumeInput, _ ...request.Option) (*ec2.DeleteVolumeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteVolume"); err != nil {
		return nil, err
	}

	id := aws.StringValue(input.VolumeId)
	for i, vol := range f.volumes {
		if aws.StringValue(vol.VolumeId) != id {
			continue
		}
		if len(vol.Attachments) > 0 {
			return nil, errorf("VolumeInUse", "Volume %s is currently attached to %s", id, aws.StringValue(vol.Attachments[0].InstanceId))
		}
		f.volumes = append(f.volumes[:i], f.volumes[i+1:]...)
		return &ec2.DeleteVolumeOutput{}, nil
	}
	return nil, errorf("InvalidVolume.NotFound", "The volume '%s' does not exist.", id)
}

func (f *EC2) AttachVolumeWithContext(_ aws.Context, input *ec2.AttachVolumeInput, _ ...request.Option) (*ec2.VolumeAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AttachVolume"); err != nil {
		return nil, err
	}

	volumeID := aws.StringValue(input.VolumeId)
	vol := f.findVolume(volumeID)
	if vol == nil {
		return nil, errorf("InvalidVolume.NotFound", "The volume '%s' does not exist.", volumeID)
	}
	instanceID := aws.StringValue(input.InstanceId)
	inst := f.findInstance(instanceID)
	if inst == nil {
		return nil, errorf("InvalidInstanceID.NotFound", "The instance ID '%s' does not exist", instanceID)
	}
	if aws.StringValue(input.Device) == "" {
		return nil, errorf("MissingParameter", "The request must contain the parameter device")
	}
	if aws.StringValue(vol.State) != ec2.VolumeStateAvailable {
		return nil, errorf("IncorrectState", "vol '%s' is not 'available'.", volumeID)
	}
	switch aws.StringValue(inst.State.Name) {
	case ec2.InstanceStateNameRunning, ec2.InstanceStateNameStopped:
	default:
		return nil, errorf("IncorrectInstanceState", "Instance '%s' is not 'running'.", instanceID)
	}
	if aws.StringValue(vol.AvailabilityZone) != aws.StringValue(inst.Placement.AvailabilityZone) {
		return nil, errorf("InvalidVolume.ZoneMismatch", "The volume '%s' is not in the same availability zone as instance '%s'", volumeID, instanceID)
	}

	attachment := &ec2.VolumeAttachment{
		VolumeId:   vol.VolumeId,
		InstanceId: inst.InstanceId,
		Device:     input.Device,
		State:      aws.String(ec2.VolumeAttachmentStateAttached),
		AttachTime: aws.Time(time.Now()),
	}
	vol.Attachments = []*ec2.VolumeAttachment{attachment}
	vol.State = aws.String(ec2.VolumeStateInUse)
	return copyOf(attachment), nil
}

func (f *EC2) DetachVolumeWithContext(_ aws.Context, input *ec2.DetachVolumeInput, _ ...request.Option) (*ec2.VolumeAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DetachVolume"); err != nil {
		return nil, err
	}

	volumeID := aws.StringValue(input.VolumeId)
	vol := f.findVolume(volumeID)
	if vol == nil {
		return nil, errorf("InvalidVolume.NotFound", "The volume '%s' does not exist.", volumeID)
	}
	if len(vol.Attachments) == 0 {
		return nil, errorf("IncorrectState", "Volume '%s' is in the 'available' state.", volumeID)
	}
	attachment := copyOf(vol.Attachments[0])
	attachment.State = aws.String(ec2.VolumeAttachmentStateDetaching)
	vol.Attachments = nil
	vol.State = aws.String(ec2.VolumeStateAvailable)
	return attachment, nil
}

func snapshotOwnerMatches(snap *ec2.Snapshot, owners []*string) bool {
	if len(owners) == 0 {
		return true
	}
	for _, owner := range aws.StringValueSlice(owners) {
		if owner == "self" {
			owner = AccountID
		}
		if aws.StringValue(snap.OwnerId) == owner {
			return true
		}
	}
	return false
}

func (f *EC2) CreateSnapshotWithContext(_ aws.Context, input *ec2.CreateSnapshotInput, _ ...request.Option) (*ec2.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateSnapshot"); err != nil {
		return nil, err
	}

	volumeID := aws.StringValue(input.VolumeId)
	vol := f.findVolume(volumeID)
	if vol == nil {
		return nil, errorf("InvalidVolume.NotFound", "The volume '%s' does not exist.", volumeID)
	}

	snap := &ec2.Snapshot{
		SnapshotId:  aws.String(newID("snap")),
		VolumeId:    vol.VolumeId,
		VolumeSize:  vol.Size,
		Description: input.Description,
		OwnerId:     aws.String(AccountID),
		State:       aws.String(ec2.SnapshotStatePending),
		Progress:    aws.String("0%"),
		StartTime:   aws.Time(time.Now()),
		Tags:        tagsFrom(input.TagSpecifications, ec2.ResourceTypeSnapshot),
	}
	f.snapshots = append(f.snapshots, snap)
	return copyOf(snap), nil
}

func (f *EC2) DescribeSnapshotsWithContext(_ aws.Context, input *ec2.DescribeSnapshotsInput, _ ...request.Option) (*ec2.DescribeSnapshotsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeSnapshots"); err != nil {
		return nil, err
	}

	for _, id := range input.SnapshotIds {
		if f.findSnapshot(aws.StringValue(id)) == nil {
			return nil, errorf("InvalidSnapshot.NotFound", "The snapshot '%s' does not exist.", aws.StringValue(id))
		}
	}

	out := &ec2.DescribeSnapshotsOutput{}
	for _, snap := range f.snapshots {
		if len(input.SnapshotIds) > 0 && !contains(input.SnapshotIds, aws.StringValue(snap.SnapshotId)) {
			continue
		}
		if !snapshotOwnerMatches(snap, input.OwnerIds) {
			continue
		}
		ok, err := matchFilters(input.Filters, func(name string) ([]string, bool) {
			switch name {
			case "snapshot-id":
				return []string{aws.StringValue(snap.SnapshotId)}, true
			case "volume-id":
				return []string{aws.StringValue(snap.VolumeId)}, true
			case "status":
				return []string{aws.StringValue(snap.State)}, true
			case "owner-id":
				return []string{aws.StringValue(snap.OwnerId)}, true
			case "description":
				return []string{aws.StringValue(snap.Description)}, true
			}
			return tagValues(snap.Tags, name)
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out.Snapshots = append(out.Snapshots, copyOf(snap))
		if aws.StringValue(snap.State) == ec2.SnapshotStatePending {
			snap.State = aws.String(ec2.SnapshotStateCompleted)
			snap.Progress = aws.String("100%")
		}
	}
	return out, nil
}

func (f *EC2) DescribeSnapshotsPagesWithContext(ctx aws.Context, input *ec2.DescribeSnapshotsInput, fn func(*ec2.DescribeSnapshotsOutput, bool) bool, opts ...request.Option) error {
	out, err := f.DescribeSnapshotsWithContext(ctx, input, opts...)
	if err != nil {
		return err
	}
	fn(out, true)
	return nil
}

func (f *EC2) DeleteSnapshotWithContext(_ aws.Context, input *ec2.DeleteSnapshotInput, _ ...request.Option) (*ec2.DeleteSnapshotOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteSnapshot"); err != nil {
		return nil, err
	}

	id := aws.StringValue(input.SnapshotId)
	for _, img := range f.images {
		for _, bdm := range img.BlockDeviceMappings {
			if bdm.Ebs != nil && aws.StringValue(bdm.Ebs.SnapshotId) == id {
				return nil, errorf("InvalidSnapshot.InUse", "The snapshot %s is currently in use by %s", id, aws.StringValue(img.ImageId))
			}
		}
	}
	for i, snap := range f.snapshots {
		if aws.StringValue(snap.SnapshotId) == id {
			f.snapshots = append(f.snapshots[:i], f.snapshots[i+1:]...)
			return &ec2.DeleteSnapshotOutput{}, nil
		}
	}
	return nil, errorf("InvalidSnapshot.NotFound", "The snapshot '%s' does not exist.", id)
}
