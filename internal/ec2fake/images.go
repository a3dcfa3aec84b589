package ec2fake

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
)

func (f *EC2) findImage(id string) *ec2.Image {
	for _, img := range f.images {
		if aws.StringValue(img.ImageId) == id {
			return img
		}
	}
	return nil
}

func ownerMatches(img *ec2.Image, owners []*string) bool {
	if len(owners) == 0 {
		return true
	}
	for _, owner := range aws.StringValueSlice(owners) {
		switch owner {
		case "self":
			if aws.StringValue(img.OwnerId) == AccountID {
				return true
			}
		default:
			if aws.StringValue(img.OwnerId) == owner {
				return true
			}
		}
	}
	return false
}

func (f *EC2) DescribeImagesWithContext(_ aws.Context, input *ec2.DescribeImagesInput, _ ...request.Option) (*ec2.DescribeImagesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeImages"); err != nil {
		return nil, err
	}

	for _, id := range input.ImageIds {
		if f.findImage(aws.StringValue(id)) == nil {
			return nil, errorf("InvalidAMIID.NotFound", "The image id '[%s]' does not exist", aws.StringValue(id))
		}
	}

	out := &ec2.DescribeImagesOutput{}
	for _, img := range f.images {
		if len(input.ImageIds) > 0 && !contains(input.ImageIds, aws.StringValue(img.ImageId)) {
			continue
		}
		if !ownerMatches(img, input.Owners) {
			continue
		}
		ok, err := matchFilters(input.Filters, func(name string) ([]string, bool) {
			switch name {
			case "image-id":
				return []string{aws.StringValue(img.ImageId)}, true
			case "name":
				return []string{aws.StringValue(img.Name)}, true
			case "state":
				return []string{aws.StringValue(img.State)}, true
			case "owner-id":
				return []string{aws.StringValue(img.OwnerId)}, true
			}
			return tagValues(img.Tags, name)
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out.Images = append(out.Images, copyOf(img))
		// images become available after they have been observed once
		if aws.StringValue(img.State) == ec2.ImageStatePending {
			img.State = aws.String(ec2.ImageStateAvailable)
		}
	}
	return out, nil
}

func (f *EC2) CreateImageWithContext(_ aws.Context, input *ec2.CreateImageInput, _ ...request.Option) (*ec2.CreateImageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateImage"); err != nil {
		return nil, err
	}

	instanceID := aws.StringValue(input.InstanceId)
	inst := f.findInstance(instanceID)
	if inst == nil {
		return nil, errorf("InvalidInstanceID.NotFound", "The instance ID '%s' does not exist", instanceID)
	}
	switch aws.StringValue(inst.State.Name) {
	case ec2.InstanceStateNameShuttingDown, ec2.InstanceStateNameTerminated:
		return nil, errorf("IncorrectInstanceState", "The instance '%s' is not in a state from which it can be imaged.", instanceID)
	}
	name := aws.StringValue(input.Name)
	for _, img := range f.images {
		if aws.StringValue(img.Name) == name && aws.StringValue(img.OwnerId) == AccountID {
			return nil, errorf("InvalidAMIName.Duplicate", "AMI name %s is already in use by AMI %s", name, aws.StringValue(img.ImageId))
		}
	}

	imageID := newID("ami")
	snapshotID := newID("snap")
	f.snapshots = append(f.snapshots, &ec2.Snapshot{
		SnapshotId:  aws.String(snapshotID),
		VolumeId:    aws.String(newID("vol")),
		VolumeSize:  aws.Int64(8),
		OwnerId:     aws.String(AccountID),
		State:       aws.String(ec2.SnapshotStateCompleted),
		Progress:    aws.String("100%"),
		StartTime:   aws.Time(time.Now()),
		Description: aws.String(fmt.Sprintf("Created by CreateImage(%s) for %s", instanceID, imageID)),
	})
	img := &ec2.Image{
		ImageId:      aws.String(imageID),
		Name:         input.Name,
		Description:  input.Description,
		OwnerId:      aws.String(AccountID),
		Public:       aws.Bool(false),
		State:        aws.String(ec2.ImageStatePending),
		CreationDate: aws.String(time.Now().UTC().Format(time.RFC3339)),
		BlockDeviceMappings: []*ec2.BlockDeviceMapping{{
			DeviceName: aws.String("/dev/xvda"),
			Ebs: &ec2.EbsBlockDevice{
				SnapshotId: aws.String(snapshotID),
				VolumeSize: aws.Int64(8),
			},
		}},
	}
	f.images = append(f.images, img)
	return &ec2.CreateImageOutput{ImageId: img.ImageId}, nil
}

func (f *EC2) DeregisterImageWithContext(_ aws.Context, input *ec2.DeregisterImageInput, _ ...request.Option) (*ec2.DeregisterImageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeregisterImage"); err != nil {
		return nil, err
	}

	id := aws.StringValue(input.ImageId)
	for i, img := range f.images {
		if aws.StringValue(img.ImageId) != id {
			continue
		}
		if aws.StringValue(img.OwnerId) != AccountID {
			return nil, errorf("AuthFailure", "Not authorized for image:%s", id)
		}
		f.images = append(f.images[:i], f.images[i+1:]...)
		return &ec2.DeregisterImageOutput{}, nil
	}
	return nil, errorf("InvalidAMIID.NotFound", "The image id '[%s]' does not exist", id)
}
