package aws

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"

	"github.com/01000101/cloudbridge/internal/utils"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/sirupsen/logrus"
)

// SecurityGroup wraps an EC2 security group. Handles built from a rule or an
// instance only carry the id and the name.
type SecurityGroup struct {
	p  *Provider
	sg *ec2.SecurityGroup
}

var _ cloud.SecurityGroup = (*SecurityGroup)(nil)

func (g *SecurityGroup) ID() string          { return aws.StringValue(g.sg.GroupId) }
func (g *SecurityGroup) Name() string        { return aws.StringValue(g.sg.GroupName) }
func (g *SecurityGroup) Kind() cloud.Kind    { return cloud.KindSecurityGroup }
func (g *SecurityGroup) Ref() cloud.Ref      { return g.p.ref(cloud.KindSecurityGroup, g.ID(), nil) }
func (g *SecurityGroup) String() string      { return g.Ref().String() }
func (g *SecurityGroup) Description() string { return aws.StringValue(g.sg.Description) }
func (g *SecurityGroup) VpcID() string       { return aws.StringValue(g.sg.VpcId) }

func (g *SecurityGroup) Equal(other cloud.Resource) bool {
	return cloud.SameResource(g, other)
}

func (g *SecurityGroup) Delete(ctx context.Context) error {
	return g.p.securityGroups.Delete(ctx, g.ID())
}

// Rules describes the group again and flattens its ingress permissions into
// one rule per CIDR block and per source group. The handle itself is left
// untouched.
func (g *SecurityGroup) Rules(ctx context.Context) ([]cloud.SecurityGroupRule, error) {
	found, err := g.p.securityGroups.describe(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []*ec2.Filter{filter("group-id", g.ID())},
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, cloud.NotFound("rules", cloud.KindSecurityGroup, g.ID())
	}

	var rules []cloud.SecurityGroupRule
	var unnamed []string
	for _, perm := range found[0].sg.IpPermissions {
		base := SecurityGroupRule{
			parent:   g,
			protocol: aws.StringValue(perm.IpProtocol),
			fromPort: portValue(perm.FromPort),
			toPort:   portValue(perm.ToPort),
		}
		for _, r := range perm.IpRanges {
			rule := base
			rule.cidr = aws.StringValue(r.CidrIp)
			rules = append(rules, &rule)
		}
		for _, r := range perm.Ipv6Ranges {
			rule := base
			rule.cidr = aws.StringValue(r.CidrIpv6)
			rules = append(rules, &rule)
		}
		for _, pair := range perm.UserIdGroupPairs {
			rule := base
			rule.source = &SecurityGroup{p: g.p, sg: &ec2.SecurityGroup{
				GroupId:   pair.GroupId,
				GroupName: pair.GroupName,
			}}
			if pair.GroupName == nil {
				unnamed = append(unnamed, aws.StringValue(pair.GroupId))
			}
			rules = append(rules, &rule)
		}
	}

	if len(unnamed) > 0 {
		if err := g.resolveSourceNames(ctx, rules, unnamed); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

// resolveSourceNames fills in source group names EC2 left out, with a
// single describe call.
func (g *SecurityGroup) resolveSourceNames(ctx context.Context, rules []cloud.SecurityGroupRule, ids []string) error {
	groups, err := g.p.securityGroups.describe(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []*ec2.Filter{filter("group-id", ids...)},
	})
	if err != nil {
		return err
	}
	names := make(map[string]*string, len(groups))
	for _, sg := range groups {
		names[sg.ID()] = sg.sg.GroupName
	}
	for _, r := range rules {
		rule := r.(*SecurityGroupRule)
		if rule.source != nil && rule.source.sg.GroupName == nil {
			rule.source.sg.GroupName = names[rule.source.ID()]
		}
	}
	return nil
}

// AddRule authorizes an ingress rule from a CIDR block or another group
func (g *SecurityGroup) AddRule(ctx context.Context, spec models.RuleSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	spec = spec.Normalize()

	_, err := g.p.ec2.AuthorizeSecurityGroupIngressWithContext(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       g.sg.GroupId,
		IpPermissions: []*ec2.IpPermission{permission(spec)},
	})
	if err != nil {
		return translateError("add_rule", cloud.KindSecurityGroupRule, g.ID(), err)
	}
	g.p.log(cloud.KindSecurityGroup).WithFields(logrus.Fields{
		"group_id": g.ID(),
		"rule":     spec.String(),
	}).Info("Added security group rule")
	return nil
}

// RemoveRule revokes a rule previously returned by Rules
func (g *SecurityGroup) RemoveRule(ctx context.Context, rule cloud.SecurityGroupRule) error {
	spec := models.RuleSpec{
		Protocol: rule.Protocol(),
		FromPort: rule.FromPort(),
		ToPort:   rule.ToPort(),
		CIDR:     rule.CIDR(),
	}
	if src := rule.SourceGroup(); src != nil {
		spec.SourceGroupID = src.ID()
	}

	_, err := g.p.ec2.RevokeSecurityGroupIngressWithContext(ctx, &ec2.RevokeSecurityGroupIngressInput{
		GroupId:       g.sg.GroupId,
		IpPermissions: []*ec2.IpPermission{permission(spec)},
	})
	if err != nil {
		return translateError("remove_rule", cloud.KindSecurityGroupRule, g.ID(), err)
	}
	g.p.log(cloud.KindSecurityGroup).WithFields(logrus.Fields{
		"group_id": g.ID(),
		"rule":     spec.String(),
	}).Info("Removed security group rule")
	return nil
}

func permission(spec models.RuleSpec) *ec2.IpPermission {
	perm := &ec2.IpPermission{
		IpProtocol: aws.String(spec.Protocol),
		FromPort:   aws.Int64(spec.FromPort),
		ToPort:     aws.Int64(spec.ToPort),
	}
	switch {
	case spec.SourceGroupID != "":
		perm.UserIdGroupPairs = []*ec2.UserIdGroupPair{{GroupId: aws.String(spec.SourceGroupID)}}
	case utils.IsIPv6CIDR(spec.CIDR):
		perm.Ipv6Ranges = []*ec2.Ipv6Range{{CidrIpv6: aws.String(spec.CIDR)}}
	default:
		perm.IpRanges = []*ec2.IpRange{{CidrIp: aws.String(spec.CIDR)}}
	}
	return perm
}

// portValue maps the missing ports of all-traffic permissions to -1
func portValue(v *int64) int64 {
	if v == nil {
		return -1
	}
	return *v
}

// SecurityGroupRule is one flattened ingress permission
type SecurityGroupRule struct {
	parent   *SecurityGroup
	protocol string
	fromPort int64
	toPort   int64
	cidr     string
	source   *SecurityGroup
}

var _ cloud.SecurityGroupRule = (*SecurityGroupRule)(nil)

func (r *SecurityGroupRule) ID() string                  { return r.parent.ID() }
func (r *SecurityGroupRule) Kind() cloud.Kind            { return cloud.KindSecurityGroupRule }
func (r *SecurityGroupRule) String() string              { return r.Ref().String() }
func (r *SecurityGroupRule) Protocol() string            { return r.protocol }
func (r *SecurityGroupRule) FromPort() int64             { return r.fromPort }
func (r *SecurityGroupRule) ToPort() int64               { return r.toPort }
func (r *SecurityGroupRule) CIDR() string                { return r.cidr }
func (r *SecurityGroupRule) Parent() cloud.SecurityGroup { return r.parent }
func (r *SecurityGroupRule) Equal(o cloud.Resource) bool { return cloud.SameResource(r, o) }

// Name renders the rule, e.g. "tcp 22-22 from 0.0.0.0/0"
func (r *SecurityGroupRule) Name() string {
	spec := models.RuleSpec{Protocol: r.protocol, FromPort: r.fromPort, ToPort: r.toPort, CIDR: r.cidr}
	if r.source != nil {
		spec.SourceGroupID = r.source.ID()
	}
	return spec.String()
}

// SourceGroup returns nil for CIDR rules
func (r *SecurityGroupRule) SourceGroup() cloud.SecurityGroup {
	if r.source == nil {
		return nil
	}
	return r.source
}

// Ref identifies the rule by its group and every field of the permission
func (r *SecurityGroupRule) Ref() cloud.Ref {
	attrs := url.Values{
		"protocol": {r.protocol},
		"from":     {strconv.FormatInt(r.fromPort, 10)},
		"to":       {strconv.FormatInt(r.toPort, 10)},
	}
	if r.source != nil {
		attrs.Set("group", r.source.ID())
	} else {
		attrs.Set("cidr", r.cidr)
	}
	return r.parent.p.ref(cloud.KindSecurityGroupRule, r.parent.ID(), attrs)
}

type securityGroupService struct {
	p *Provider
}

var _ cloud.SecurityGroupService = (*securityGroupService)(nil)

func (s *securityGroupService) wrap(sg *ec2.SecurityGroup) *SecurityGroup {
	return &SecurityGroup{p: s.p, sg: sg}
}

func (s *securityGroupService) describe(ctx context.Context, input *ec2.DescribeSecurityGroupsInput) ([]*SecurityGroup, error) {
	var result []*SecurityGroup
	err := s.p.ec2.DescribeSecurityGroupsPagesWithContext(ctx, input, func(out *ec2.DescribeSecurityGroupsOutput, _ bool) bool {
		if out == nil {
			return false
		}
		for _, sg := range out.SecurityGroups {
			result = append(result, s.wrap(sg))
		}
		return true
	})
	if err != nil {
		return nil, translateError("describe", cloud.KindSecurityGroup, "", err)
	}
	return result, nil
}

func (s *securityGroupService) collect(ctx context.Context, input *ec2.DescribeSecurityGroupsInput) ([]cloud.SecurityGroup, error) {
	found, err := s.describe(ctx, input)
	if err != nil {
		return nil, err
	}
	result := make([]cloud.SecurityGroup, 0, len(found))
	for _, sg := range found {
		result = append(result, sg)
	}
	return result, nil
}

func (s *securityGroupService) List(ctx context.Context) ([]cloud.SecurityGroup, error) {
	return s.collect(ctx, &ec2.DescribeSecurityGroupsInput{})
}

func (s *securityGroupService) Get(ctx context.Context, f models.Filter) ([]cloud.SecurityGroup, error) {
	if f.IsEmpty() {
		return []cloud.SecurityGroup{}, nil
	}
	return s.collect(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: filterSet("group-id", "group-name", f.IDs, f.Names),
	})
}

func (s *securityGroupService) Find(ctx context.Context, name string) (cloud.SecurityGroup, bool, error) {
	found, err := s.Get(ctx, models.Filter{Names: []string{name}})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *securityGroupService) All(ctx context.Context) iter.Seq2[cloud.SecurityGroup, error] {
	return cloud.Iterate(ctx, s.List)
}

// Create creates a security group and fails with ErrDuplicate when the name
// is taken in the VPC. An empty vpcID selects the default VPC.
func (s *securityGroupService) Create(ctx context.Context, name, description, vpcID string) (cloud.SecurityGroup, error) {
	if err := utils.ValidateResourceName(name); err != nil {
		return nil, fmt.Errorf("invalid security group name: %w", err)
	}
	if description == "" {
		description = name
	}

	input := &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(description),
	}
	if vpcID != "" {
		input.VpcId = aws.String(vpcID)
	}
	out, err := s.p.ec2.CreateSecurityGroupWithContext(ctx, input)
	if err != nil {
		return nil, translateError("create", cloud.KindSecurityGroup, name, err)
	}
	groupID := aws.StringValue(out.GroupId)
	s.p.log(cloud.KindSecurityGroup).WithFields(logrus.Fields{
		"group_id":   groupID,
		"group_name": name,
	}).Info("Created security group")

	found, err := s.describe(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []*ec2.Filter{filter("group-id", groupID)},
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		// not visible yet; build the handle from what was sent
		return s.wrap(&ec2.SecurityGroup{
			GroupId:     out.GroupId,
			GroupName:   input.GroupName,
			Description: input.Description,
			VpcId:       input.VpcId,
		}), nil
	}
	return found[0], nil
}

func (s *securityGroupService) Delete(ctx context.Context, id string) error {
	if _, err := s.p.ec2.DeleteSecurityGroupWithContext(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: aws.String(id),
	}); err != nil {
		return translateError("delete", cloud.KindSecurityGroup, id, err)
	}
	s.p.log(cloud.KindSecurityGroup).WithField("group_id", id).Info("Deleted security group")
	return nil
}
