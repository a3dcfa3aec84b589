package ec2fake

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
)

func (f *EC2) findGroup(id string) *ec2.SecurityGroup {
	for _, sg := range f.groups {
		if aws.StringValue(sg.GroupId) == id {
			return sg
		}
	}
	return nil
}

func (f *EC2) findGroupByName(name string) *ec2.SecurityGroup {
	for _, sg := range f.groups {
		if aws.StringValue(sg.GroupName) == name {
			return sg
		}
	}
	return nil
}

func (f *EC2) CreateSecurityGroupWithContext(_ aws.Context, input *ec2.CreateSecurityGroupInput, _ ...request.Option) (*ec2.CreateSecurityGroupOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateSecurityGroup"); err != nil {
		return nil, err
	}

	name := aws.StringValue(input.GroupName)
	if name == "" || aws.StringValue(input.Description) == "" {
		return nil, errorf("MissingParameter", "The request must contain the parameters GroupName and GroupDescription")
	}
	vpcID := aws.StringValue(input.VpcId)
	if vpcID == "" {
		vpcID = DefaultVpcID
	}
	if f.findVpc(vpcID) == nil {
		return nil, errorf("InvalidVpcID.NotFound", "The vpc ID '%s' does not exist", vpcID)
	}
	for _, sg := range f.groups {
		if aws.StringValue(sg.GroupName) == name && aws.StringValue(sg.VpcId) == vpcID {
			return nil, errorf("InvalidGroup.Duplicate", "The security group '%s' already exists for VPC '%s'", name, vpcID)
		}
	}

	sg := &ec2.SecurityGroup{
		GroupId:     aws.String(newID("sg")),
		GroupName:   aws.String(name),
		Description: input.Description,
		VpcId:       aws.String(vpcID),
		OwnerId:     aws.String(AccountID),
	}
	f.groups = append(f.groups, sg)
	return &ec2.CreateSecurityGroupOutput{GroupId: sg.GroupId}, nil
}

func (f *EC2) DescribeSecurityGroupsWithContext(_ aws.Context, input *ec2.DescribeSecurityGroupsInput, _ ...request.Option) (*ec2.DescribeSecurityGroupsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeSecurityGroups"); err != nil {
		return nil, err
	}

	for _, id := range input.GroupIds {
		if f.findGroup(aws.StringValue(id)) == nil {
			return nil, errorf("InvalidGroup.NotFound", "The security group '%s' does not exist", aws.StringValue(id))
		}
	}

	out := &ec2.DescribeSecurityGroupsOutput{}
	for _, sg := range f.groups {
		if len(input.GroupIds) > 0 && !contains(input.GroupIds, aws.StringValue(sg.GroupId)) {
			continue
		}
		if len(input.GroupNames) > 0 && !contains(input.GroupNames, aws.StringValue(sg.GroupName)) {
			continue
		}
		ok, err := matchFilters(input.Filters, func(name string) ([]string, bool) {
			switch name {
			case "group-id":
				return []string{aws.StringValue(sg.GroupId)}, true
			case "group-name":
				return []string{aws.StringValue(sg.GroupName)}, true
			case "vpc-id":
				return []string{aws.StringValue(sg.VpcId)}, true
			case "description":
				return []string{aws.StringValue(sg.Description)}, true
			}
			return tagValues(sg.Tags, name)
		})
		if err != nil {
			return nil, err
		}
		if ok {
			out.SecurityGroups = append(out.SecurityGroups, copyOf(sg))
		}
	}
	return out, nil
}

func (f *EC2) DescribeSecurityGroupsPagesWithContext(ctx aws.Context, input *ec2.DescribeSecurityGroupsInput, fn func(*ec2.DescribeSecurityGroupsOutput, bool) bool, opts ...request.Option) error {
	out, err := f.DescribeSecurityGroupsWithContext(ctx, input, opts...)
	if err != nil {
		return err
	}
	fn(out, true)
	return nil
}

func (f *EC2) DeleteSecurityGroupWithContext(_ aws.Context, input *ec2.DeleteSecurityGroupInput, _ ...request.Option) (*ec2.DeleteSecurityGroupOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteSecurityGroup"); err != nil {
		return nil, err
	}

	id := aws.StringValue(input.GroupId)
	for i, sg := range f.groups {
		if aws.StringValue(sg.GroupId) != id {
			continue
		}
		for _, inst := range f.instances {
			if st := aws.StringValue(inst.State.Name); st == ec2.InstanceStateNameTerminated || st == ec2.InstanceStateNameShuttingDown {
				continue
			}
			for _, g := range inst.SecurityGroups {
				if aws.StringValue(g.GroupId) == id {
					return nil, errorf("DependencyViolation", "resource %s has a dependent object", id)
				}
			}
		}
		f.groups = append(f.groups[:i], f.groups[i+1:]...)
		return &ec2.DeleteSecurityGroupOutput{}, nil
	}
	return nil, errorf("InvalidGroup.NotFound", "The security group '%s' does not exist", id)
}

func samePermission(a, b *ec2.IpPermission) bool {
	return aws.StringValue(a.IpProtocol) == aws.StringValue(b.IpProtocol) &&
		aws.Int64Value(a.FromPort) == aws.Int64Value(b.FromPort) &&
		aws.Int64Value(a.ToPort) == aws.Int64Value(b.ToPort)
}

// normalizePermission clears ports of all-traffic permissions, as EC2 does
func normalizePermission(p *ec2.IpPermission) *ec2.IpPermission {
	p = copyOf(p)
	if aws.StringValue(p.IpProtocol) == "-1" {
		p.FromPort, p.ToPort = nil, nil
	}
	return p
}

func (f *EC2) AuthorizeSecurityGroupIngressWithContext(_ aws.Context, input *ec2.AuthorizeSecurityGroupIngressInput, _ ...request.Option) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AuthorizeSecurityGroupIngress"); err != nil {
		return nil, err
	}

	sg := f.findGroup(aws.StringValue(input.GroupId))
	if sg == nil {
		return nil, errorf("InvalidGroup.NotFound", "The security group '%s' does not exist", aws.StringValue(input.GroupId))
	}

	for _, in := range input.IpPermissions {
		in = normalizePermission(in)
		for _, pair := range in.UserIdGroupPairs {
			if f.findGroup(aws.StringValue(pair.GroupId)) == nil {
				return nil, errorf("InvalidGroup.NotFound", "The security group '%s' does not exist", aws.StringValue(pair.GroupId))
			}
			// EC2 reports VPC group pairs without their name
			pair.GroupName = nil
			pair.UserId = aws.String(AccountID)
		}

		var existing *ec2.IpPermission
		for _, p := range sg.IpPermissions {
			if samePermission(p, in) {
				existing = p
				break
			}
		}
		if existing == nil {
			sg.IpPermissions = append(sg.IpPermissions, in)
			continue
		}
		for _, r := range in.IpRanges {
			for _, have := range existing.IpRanges {
				if aws.StringValue(have.CidrIp) == aws.StringValue(r.CidrIp) {
					return nil, errorf("InvalidPermission.Duplicate", "the specified rule already exists")
				}
			}
			existing.IpRanges = append(existing.IpRanges, r)
		}
		for _, r := range in.Ipv6Ranges {
			for _, have := range existing.Ipv6Ranges {
				if aws.StringValue(have.CidrIpv6) == aws.StringValue(r.CidrIpv6) {
					return nil, errorf("InvalidPermission.Duplicate", "the specified rule already exists")
				}
			}
			existing.Ipv6Ranges = append(existing.Ipv6Ranges, r)
		}
		for _, pair := range in.UserIdGroupPairs {
			for _, have := range existing.UserIdGroupPairs {
				if aws.StringValue(have.GroupId) == aws.StringValue(pair.GroupId) {
					return nil, errorf("InvalidPermission.Duplicate", "the specified rule already exists")
				}
			}
			existing.UserIdGroupPairs = append(existing.UserIdGroupPairs, pair)
		}
	}
	return &ec2.AuthorizeSecurityGroupIngressOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) RevokeSecurityGroupIngressWithContext(_ aws.Context, input *ec2.RevokeSecurityGroupIngressInput, _ ...request.Option) (*ec2.RevokeSecurityGroupIngressOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RevokeSecurityGroupIngress"); err != nil {
		return nil, err
	}

	sg := f.findGroup(aws.StringValue(input.GroupId))
	if sg == nil {
		return nil, errorf("InvalidGroup.NotFound", "The security group '%s' does not exist", aws.StringValue(input.GroupId))
	}

	notFound := errorf("InvalidPermission.NotFound", "The specified rule does not exist in this security group.")
	for _, in := range input.IpPermissions {
		in = normalizePermission(in)
		idx := -1
		for i, p := range sg.IpPermissions {
			if samePermission(p, in) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, notFound
		}
		existing := sg.IpPermissions[idx]
		for _, r := range in.IpRanges {
			kept := existing.IpRanges[:0]
			found := false
			for _, have := range existing.IpRanges {
				if aws.StringValue(have.CidrIp) == aws.StringValue(r.CidrIp) {
					found = true
					continue
				}
				kept = append(kept, have)
			}
			if !found {
				return nil, notFound
			}
			existing.IpRanges = kept
		}
		for _, r := range in.Ipv6Ranges {
			kept := existing.Ipv6Ranges[:0]
			found := false
			for _, have := range existing.Ipv6Ranges {
				if aws.StringValue(have.CidrIpv6) == aws.StringValue(r.CidrIpv6) {
					found = true
					continue
				}
				kept = append(kept, have)
			}
			if !found {
				return nil, notFound
			}
			existing.Ipv6Ranges = kept
		}
		for _, pair := range in.UserIdGroupPairs {
			kept := existing.UserIdGroupPairs[:0]
			found := false
			for _, have := range existing.UserIdGroupPairs {
				if aws.StringValue(have.GroupId) == aws.StringValue(pair.GroupId) {
					found = true
					continue
				}
				kept = append(kept, have)
			}
			if !found {
				return nil, notFound
			}
			existing.UserIdGroupPairs = kept
		}
		if len(existing.IpRanges) == 0 && len(existing.Ipv6Ranges) == 0 && len(existing.UserIdGroupPairs) == 0 {
			sg.IpPermissions = append(sg.IpPermissions[:idx], sg.IpPermissions[idx+1:]...)
		}
	}
	return &ec2.RevokeSecurityGroupIngressOutput{Return: aws.Bool(true)}, nil
}
