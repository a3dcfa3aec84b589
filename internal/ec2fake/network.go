package ec2fake

import (
	"net"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
)

func (f *EC2) findVpc(id string) *ec2.Vpc {
	for _, vpc := range f.vpcs {
		if aws.StringValue(vpc.VpcId) == id {
			return vpc
		}
	}
	return nil
}

func (f *EC2) findSubnet(id string) *ec2.Subnet {
	for _, subnet := range f.subnets {
		if aws.StringValue(subnet.SubnetId) == id {
			return subnet
		}
	}
	return nil
}

// within reports whether inner is contained in outer
func within(inner, outer *net.IPNet) bool {
	innerOnes, _ := inner.Mask.Size()
	outerOnes, _ := outer.Mask.Size()
	return innerOnes >= outerOnes && outer.Contains(inner.IP)
}

func overlaps(a, b *net.IPNet) bool {
	return a.Contains(b.IP) || b.Contains(a.IP)
}

func parseBlock(cidr string, minPrefix, maxPrefix int) (*net.IPNet, bool) {
	ip, block, err := net.ParseCIDR(cidr)
	if err != nil || ip.To4() == nil {
		return nil, false
	}
	ones, _ := block.Mask.Size()
	return block, ones >= minPrefix && ones <= maxPrefix
}

func (f *EC2) CreateVpcWithContext(_ aws.Context, input *ec2.CreateVpcInput, _ ...request.Option) (*ec2.CreateVpcOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateVpc"); err != nil {
		return nil, err
	}

	cidr := aws.StringValue(input.CidrBlock)
	block, ok := parseBlock(cidr, 16, 28)
	if !ok {
		return nil, errorf("InvalidVpc.Range", "The CIDR '%s' is invalid.", cidr)
	}
	vpc := &ec2.Vpc{
		VpcId:     aws.String(newID("vpc")),
		CidrBlock: aws.String(block.String()),
		IsDefault: aws.Bool(false),
		State:     aws.String(ec2.VpcStatePending),
		OwnerId:   aws.String(AccountID),
		Tags:      tagsFrom(input.TagSpecifications, ec2.ResourceTypeVpc),
	}
	f.vpcs = append(f.vpcs, vpc)
	return &ec2.CreateVpcOutput{Vpc: copyOf(vpc)}, nil
}

func (f *EC2) DescribeVpcsWithContext(_ aws.Context, input *ec2.DescribeVpcsInput, _ ...request.Option) (*ec2.DescribeVpcsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeVpcs"); err != nil {
		return nil, err
	}

	for _, id := range input.VpcIds {
		if f.findVpc(aws.StringValue(id)) == nil {
			return nil, errorf("InvalidVpcID.NotFound", "The vpc ID '%s' does not exist", aws.StringValue(id))
		}
	}

	out := &ec2.DescribeVpcsOutput{}
	for _, vpc := range f.vpcs {
		if len(input.VpcIds) > 0 && !contains(input.VpcIds, aws.StringValue(vpc.VpcId)) {
			continue
		}
		ok, err := matchFilters(input.Filters, func(name string) ([]string, bool) {
			switch name {
			case "vpc-id":
				return []string{aws.StringValue(vpc.VpcId)}, true
			case "cidr", "cidr-block-association.cidr-block":
				return []string{aws.StringValue(vpc.CidrBlock)}, true
			case "state":
				return []string{aws.StringValue(vpc.State)}, true
			case "is-default":
				return []string{strconv.FormatBool(aws.BoolValue(vpc.IsDefault))}, true
			}
			return tagValues(vpc.Tags, name)
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out.Vpcs = append(out.Vpcs, copyOf(vpc))
		if aws.StringValue(vpc.State) == ec2.VpcStatePending {
			vpc.State = aws.String(ec2.VpcStateAvailable)
		}
	}
	return out, nil
}

func (f *EC2) DeleteVpcWithContext(_ aws.Context, input *ec2.DeleteVpcInput, _ ...request.Option) (*ec2.DeleteVpcOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteVpc"); err != nil {
		return nil, err
	}

	id := aws.StringValue(input.VpcId)
	for _, subnet := range f.subnets {
		if aws.StringValue(subnet.VpcId) == id {
			return nil, errorf("DependencyViolation", "The vpc '%s' has dependencies and cannot be deleted.", id)
		}
	}
	for _, sg := range f.groups {
		if aws.StringValue(sg.VpcId) == id {
			return nil, errorf("DependencyViolation", "The vpc '%s' has dependencies and cannot be deleted.", id)
		}
	}
	for i, vpc := range f.vpcs {
		if aws.StringValue(vpc.VpcId) == id {
			f.vpcs = append(f.vpcs[:i], f.vpcs[i+1:]...)
			return &ec2.DeleteVpcOutput{}, nil
		}
	}
	return nil, errorf("InvalidVpcID.NotFound", "The vpc ID '%s' does not exist", id)
}

func (f *EC2) CreateSubnetWithContext(_ aws.Context, input *ec2.CreateSubnetInput, _ ...request.Option) (*ec2.CreateSubnetOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateSubnet"); err != nil {
		return nil, err
	}

	vpcID := aws.StringValue(input.VpcId)
	vpc := f.findVpc(vpcID)
	if vpc == nil {
		return nil, errorf("InvalidVpcID.NotFound", "The vpc ID '%s' does not exist", vpcID)
	}
	cidr := aws.StringValue(input.CidrBlock)
	block, ok := parseBlock(cidr, 16, 28)
	_, vpcBlock, _ := net.ParseCIDR(aws.StringValue(vpc.CidrBlock))
	if !ok || !within(block, vpcBlock) {
		return nil, errorf("InvalidSubnet.Range", "The CIDR '%s' is invalid.", cidr)
	}
	for _, subnet := range f.subnets {
		_, other, _ := net.ParseCIDR(aws.StringValue(subnet.CidrBlock))
		if aws.StringValue(subnet.VpcId) == vpcID && overlaps(block, other) {
			return nil, errorf("InvalidSubnet.Conflict", "The CIDR '%s' conflicts with another subnet", cidr)
		}
	}
	zone := aws.StringValue(input.AvailabilityZone)
	if zone == "" {
		zone = f.region + "a"
	}
	if !strings.HasPrefix(zone, f.region) {
		return nil, errorf("InvalidParameterValue", "Value (%s) for parameter availabilityZone is invalid.", zone)
	}

	ones, bits := block.Mask.Size()
	subnet := &ec2.Subnet{
		SubnetId:                aws.String(newID("subnet")),
		VpcId:                   vpc.VpcId,
		CidrBlock:               aws.String(block.String()),
		AvailabilityZone:        aws.String(zone),
		AvailableIpAddressCount: aws.Int64(int64(1)<<(bits-ones) - 5),
		DefaultForAz:            aws.Bool(false),
		State:                   aws.String(ec2.SubnetStateAvailable),
		OwnerId:                 aws.String(AccountID),
		Tags:                    tagsFrom(input.TagSpecifications, ec2.ResourceTypeSubnet),
	}
	f.subnets = append(f.subnets, subnet)
	return &ec2.CreateSubnetOutput{Subnet: copyOf(subnet)}, nil
}

func (f *EC2) DescribeSubnetsWithContext(_ aws.Context, input *ec2.DescribeSubnetsInput, _ ...request.Option) (*ec2.DescribeSubnetsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeSubnets"); err != nil {
		return nil, err
	}

	for _, id := range input.SubnetIds {
		if f.findSubnet(aws.StringValue(id)) == nil {
			return nil, errorf("InvalidSubnetID.NotFound", "The subnet ID '%s' does not exist", aws.StringValue(id))
		}
	}

	out := &ec2.DescribeSubnetsOutput{}
	for _, subnet := range f.subnets {
		if len(input.SubnetIds) > 0 && !contains(input.SubnetIds, aws.StringValue(subnet.SubnetId)) {
			continue
		}
		ok, err := matchFilters(input.Filters, func(name string) ([]string, bool) {
			switch name {
			case "subnet-id":
				return []string{aws.StringValue(subnet.SubnetId)}, true
			case "vpc-id":
				return []string{aws.StringValue(subnet.VpcId)}, true
			case "cidr-block":
				return []string{aws.StringValue(subnet.CidrBlock)}, true
			case "availability-zone":
				return []string{aws.StringValue(subnet.AvailabilityZone)}, true
			case "state":
				return []string{aws.StringValue(subnet.State)}, true
			}
			return tagValues(subnet.Tags, name)
		})
		if err != nil {
			return nil, err
		}
		if ok {
			out.Subnets = append(out.Subnets, copyOf(subnet))
		}
	}
	return out, nil
}

func (f *EC2) DeleteSubnetWithContext(_ aws.Context, input *ec2.DeleteSubnetInput, _ ...request.Option) (*ec2.DeleteSubnetOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteSubnet"); err != nil {
		return nil, err
	}

	id := aws.StringValue(input.SubnetId)
	for _, inst := range f.instances {
		if aws.StringValue(inst.SubnetId) == id && aws.StringValue(inst.State.Name) != ec2.InstanceStateNameTerminated {
			return nil, errorf("DependencyViolation", "The subnet '%s' has dependencies and cannot be deleted.", id)
		}
	}
	for i, subnet := range f.subnets {
		if aws.StringValue(subnet.SubnetId) == id {
			f.subnets = append(f.subnets[:i], f.subnets[i+1:]...)
			return &ec2.DeleteSubnetOutput{}, nil
		}
	}
	return nil, errorf("InvalidSubnetID.NotFound", "The subnet ID '%s' does not exist", id)
}
