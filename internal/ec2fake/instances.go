package ec2fake

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
)

var stateCodes = map[string]int64{
	ec2.InstanceStateNamePending:      0,
	ec2.InstanceStateNameRunning:      16,
	ec2.InstanceStateNameShuttingDown: 32,
	ec2.InstanceStateNameTerminated:   48,
	ec2.InstanceStateNameStopping:     64,
	ec2.InstanceStateNameStopped:      80,
}

func setState(inst *ec2.Instance, name string) {
	inst.State = &ec2.InstanceState{Name: aws.String(name), Code: aws.Int64(stateCodes[name])}
}

func (f *EC2) findInstance(id string) *ec2.Instance {
	for _, inst := range f.instances {
		if aws.StringValue(inst.InstanceId) == id {
			return inst
		}
	}
	return nil
}

// advance moves an instance one step along its lifecycle
func advance(inst *ec2.Instance, publicIP string) {
	switch aws.StringValue(inst.State.Name) {
	case ec2.InstanceStateNamePending:
		setState(inst, ec2.InstanceStateNameRunning)
		inst.PublicIpAddress = aws.String(publicIP)
	case ec2.InstanceStateNameShuttingDown:
		setState(inst, ec2.InstanceStateNameTerminated)
		inst.PublicIpAddress = nil
	}
}

// SetInstanceState forces the state of an instance
func (f *EC2) SetInstanceState(id, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst := f.findInstance(id); inst != nil {
		setState(inst, state)
	}
}

func (f *EC2) RunInstancesWithContext(_ aws.Context, input *ec2.RunInstancesInput, _ ...request.Option) (*ec2.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RunInstances"); err != nil {
		return nil, err
	}

	imageID := aws.StringValue(input.ImageId)
	if img := f.findImage(imageID); img == nil || aws.StringValue(img.State) != ec2.ImageStateAvailable {
		return nil, errorf("InvalidAMIID.NotFound", "The image id '[%s]' does not exist", imageID)
	}
	if input.InstanceType == nil || !strings.Contains(aws.StringValue(input.InstanceType), ".") {
		return nil, errorf("InvalidParameterValue", "Invalid value '%s' for InstanceType.", aws.StringValue(input.InstanceType))
	}
	if name := aws.StringValue(input.KeyName); name != "" && f.findKeyPair(name) == nil {
		return nil, errorf("InvalidKeyPair.NotFound", "The key pair '%s' does not exist", name)
	}

	var groups []*ec2.GroupIdentifier
	for _, id := range aws.StringValueSlice(input.SecurityGroupIds) {
		sg := f.findGroup(id)
		if sg == nil {
			return nil, errorf("InvalidGroup.NotFound", "The security group '%s' does not exist", id)
		}
		groups = append(groups, &ec2.GroupIdentifier{GroupId: sg.GroupId, GroupName: sg.GroupName})
	}
	for _, name := range aws.StringValueSlice(input.SecurityGroups) {
		sg := f.findGroupByName(name)
		if sg == nil {
			return nil, errorf("InvalidGroup.NotFound", "The security group '%s' does not exist", name)
		}
		groups = append(groups, &ec2.GroupIdentifier{GroupId: sg.GroupId, GroupName: sg.GroupName})
	}

	zone := f.region + "a"
	if input.Placement != nil && aws.StringValue(input.Placement.AvailabilityZone) != "" {
		zone = aws.StringValue(input.Placement.AvailabilityZone)
	}
	var subnet *ec2.Subnet
	if id := aws.StringValue(input.SubnetId); id != "" {
		if subnet = f.findSubnet(id); subnet == nil {
			return nil, errorf("InvalidSubnetID.NotFound", "The subnet ID '%s' does not exist", id)
		}
		zone = aws.StringValue(subnet.AvailabilityZone)
	}

	count := int(aws.Int64Value(input.MinCount))
	if count < 1 {
		count = 1
	}
	res := &ec2.Reservation{
		ReservationId: aws.String(newID("r")),
		OwnerId:       aws.String(AccountID),
	}
	for i := 0; i < count; i++ {
		f.nextIP++
		inst := &ec2.Instance{
			InstanceId:       aws.String(newID("i")),
			ImageId:          input.ImageId,
			InstanceType:     input.InstanceType,
			KeyName:          input.KeyName,
			SubnetId:         input.SubnetId,
			LaunchTime:       aws.Time(time.Now()),
			Placement:        &ec2.Placement{AvailabilityZone: aws.String(zone)},
			PrivateIpAddress: aws.String(fmt.Sprintf("10.0.%d.%d", f.nextIP/250, f.nextIP%250+4)),
			SecurityGroups:   groups,
		}
		if subnet != nil {
			inst.VpcId = subnet.VpcId
		}
		setState(inst, ec2.InstanceStateNamePending)
		inst.Tags = tagsFrom(input.TagSpecifications, ec2.ResourceTypeInstance)
		f.instances = append(f.instances, inst)
		res.Instances = append(res.Instances, copyOf(inst))
	}
	return res, nil
}

func (f *EC2) DescribeInstancesWithContext(_ aws.Context, input *ec2.DescribeInstancesInput, _ ...request.Option) (*ec2.DescribeInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeInstances"); err != nil {
		return nil, err
	}

	for _, id := range input.InstanceIds {
		if f.findInstance(aws.StringValue(id)) == nil {
			return nil, errorf("InvalidInstanceID.NotFound", "The instance ID '%s' does not exist", aws.StringValue(id))
		}
	}

	out := &ec2.DescribeInstancesOutput{}
	for n, inst := range f.instances {
		if len(input.InstanceIds) > 0 && !contains(input.InstanceIds, aws.StringValue(inst.InstanceId)) {
			continue
		}
		ok, err := matchFilters(input.Filters, func(name string) ([]string, bool) {
			switch name {
			case "instance-id":
				return []string{aws.StringValue(inst.InstanceId)}, true
			case "instance-state-name":
				return []string{aws.StringValue(inst.State.Name)}, true
			case "image-id":
				return []string{aws.StringValue(inst.ImageId)}, true
			case "key-name":
				return []string{aws.StringValue(inst.KeyName)}, true
			case "subnet-id":
				return []string{aws.StringValue(inst.SubnetId)}, true
			case "vpc-id":
				return []string{aws.StringValue(inst.VpcId)}, true
			case "instance.group-id":
				var ids []string
				for _, g := range inst.SecurityGroups {
					ids = append(ids, aws.StringValue(g.GroupId))
				}
				return ids, true
			}
			return tagValues(inst.Tags, name)
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out.Reservations = append(out.Reservations, &ec2.Reservation{
			OwnerId:   aws.String(AccountID),
			Instances: []*ec2.Instance{copyOf(inst)},
		})
		advance(inst, fmt.Sprintf("54.0.%d.%d", n/250, n%250+1))
	}
	return out, nil
}

func (f *EC2) DescribeInstancesPagesWithContext(ctx aws.Context, input *ec2.DescribeInstancesInput, fn func(*ec2.DescribeInstancesOutput, bool) bool, opts ...request.Option) error {
	out, err := f.DescribeInstancesWithContext(ctx, input, opts...)
	if err != nil {
		return err
	}
	fn(out, true)
	return nil
}

func (f *EC2) lookupInstances(ids []*string) ([]*ec2.Instance, error) {
	var out []*ec2.Instance
	for _, id := range aws.StringValueSlice(ids) {
		inst := f.findInstance(id)
		if inst == nil {
			return nil, errorf("InvalidInstanceID.NotFound", "The instance ID '%s' does not exist", id)
		}
		out = append(out, inst)
	}
	return out, nil
}

func (f *EC2) TerminateInstancesWithContext(_ aws.Context, input *ec2.TerminateInstancesInput, _ ...request.Option) (*ec2.TerminateInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("TerminateInstances"); err != nil {
		return nil, err
	}

	instances, err := f.lookupInstances(input.InstanceIds)
	if err != nil {
		return nil, err
	}
	out := &ec2.TerminateInstancesOutput{}
	for _, inst := range instances {
		previous := inst.State
		if aws.StringValue(inst.State.Name) != ec2.InstanceStateNameTerminated {
			setState(inst, ec2.InstanceStateNameShuttingDown)
		}
		f.detachAll(aws.StringValue(inst.InstanceId))
		out.TerminatingInstances = append(out.TerminatingInstances, &ec2.InstanceStateChange{
			InstanceId:    inst.InstanceId,
			PreviousState: previous,
			CurrentState:  inst.State,
		})
	}
	return out, nil
}

func (f *EC2) RebootInstancesWithContext(_ aws.Context, input *ec2.RebootInstancesInput, _ ...request.Option) (*ec2.RebootInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RebootInstances"); err != nil {
		return nil, err
	}

	instances, err := f.lookupInstances(input.InstanceIds)
	if err != nil {
		return nil, err
	}
	for _, inst := range instances {
		if aws.StringValue(inst.State.Name) == ec2.InstanceStateNameTerminated {
			return nil, errorf("IncorrectState", "The instance '%s' is not in a state from which it can be rebooted.", aws.StringValue(inst.InstanceId))
		}
	}
	return &ec2.RebootInstancesOutput{}, nil
}

// tags returns the tag list of a taggable resource, by id prefix
func (f *EC2) tags(id string) (*[]*ec2.Tag, error) {
	prefix, _, _ := strings.Cut(id, "-")
	switch prefix {
	case "i":
		if inst := f.findInstance(id); inst != nil {
			return &inst.Tags, nil
		}
		return nil, errorf("InvalidInstanceID.NotFound", "The instance ID '%s' does not exist", id)
	case "vol":
		if vol := f.findVolume(id); vol != nil {
			return &vol.Tags, nil
		}
		return nil, errorf("InvalidVolume.NotFound", "The volume '%s' does not exist.", id)
	case "snap":
		if snap := f.findSnapshot(id); snap != nil {
			return &snap.Tags, nil
		}
		return nil, errorf("InvalidSnapshot.NotFound", "The snapshot '%s' does not exist.", id)
	case "vpc":
		if vpc := f.findVpc(id); vpc != nil {
			return &vpc.Tags, nil
		}
		return nil, errorf("InvalidVpcID.NotFound", "The vpc ID '%s' does not exist", id)
	case "subnet":
		if subnet := f.findSubnet(id); subnet != nil {
			return &subnet.Tags, nil
		}
		return nil, errorf("InvalidSubnetID.NotFound", "The subnet ID '%s' does not exist", id)
	}
	return nil, errorf("InvalidID", "The ID '%s' is not valid", id)
}

func (f *EC2) CreateTagsWithContext(_ aws.Context, input *ec2.CreateTagsInput, _ ...request.Option) (*ec2.CreateTagsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateTags"); err != nil {
		return nil, err
	}

	var lists []*[]*ec2.Tag
	for _, id := range aws.StringValueSlice(input.Resources) {
		tags, err := f.tags(id)
		if err != nil {
			return nil, err
		}
		lists = append(lists, tags)
	}
	for _, tags := range lists {
		for _, tag := range input.Tags {
			replaced := false
			for _, have := range *tags {
				if aws.StringValue(have.Key) == aws.StringValue(tag.Key) {
					have.Value = tag.Value
					replaced = true
				}
			}
			if !replaced {
				*tags = append(*tags, copyOf(tag))
			}
		}
	}
	return &ec2.CreateTagsOutput{}, nil
}
