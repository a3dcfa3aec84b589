package aws

import (
	"context"
	"fmt"
	"iter"

	"github.com/01000101/cloudbridge/internal/utils"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/sirupsen/logrus"
)

var networkStates = map[string]models.NetworkState{
	ec2.VpcStatePending:   models.NetworkStatePending,
	ec2.VpcStateAvailable: models.NetworkStateAvailable,
}

func networkState(state *string) models.NetworkState {
	if st, ok := networkStates[aws.StringValue(state)]; ok {
		return st
	}
	return models.NetworkStateUnknown
}

// Network wraps a VPC
type Network struct {
	p   *Provider
	vpc *ec2.Vpc
}

var _ cloud.Network = (*Network)(nil)

func (n *Network) ID() string                 { return aws.StringValue(n.vpc.VpcId) }
func (n *Network) Name() string               { return tagValue(n.vpc.Tags, nameTag) }
func (n *Network) Kind() cloud.Kind           { return cloud.KindNetwork }
func (n *Network) Ref() cloud.Ref             { return n.p.ref(cloud.KindNetwork, n.ID(), nil) }
func (n *Network) String() string             { return n.Ref().String() }
func (n *Network) CIDR() string               { return aws.StringValue(n.vpc.CidrBlock) }
func (n *Network) IsDefault() bool            { return aws.BoolValue(n.vpc.IsDefault) }
func (n *Network) State() models.NetworkState { return networkState(n.vpc.State) }

func (n *Network) Equal(other cloud.Resource) bool {
	return cloud.SameResource(n, other)
}

// Subnets lists the subnets of this network only
func (n *Network) Subnets(ctx context.Context) ([]cloud.Subnet, error) {
	return n.p.subnets.collect(ctx, filter("vpc-id", n.ID()))
}

func (n *Network) CreateSubnet(ctx context.Context, name, cidr, zone string) (cloud.Subnet, error) {
	return n.p.subnets.Create(ctx, n.ID(), name, cidr, zone)
}

// Delete deletes the network. Subnets and security groups must be deleted
// first.
func (n *Network) Delete(ctx context.Context) error {
	return n.p.networks.Delete(ctx, n.ID())
}

func (n *Network) Refresh(ctx context.Context) error {
	found, err := n.p.networks.describe(ctx, filter("vpc-id", n.ID()))
	if err != nil {
		return err
	}
	if len(found) == 0 {
		n.vpc.State = nil
		return cloud.NotFound("refresh", cloud.KindNetwork, n.ID())
	}
	n.vpc = found[0].vpc
	return nil
}

type networkService struct {
	p *Provider
}

var _ cloud.NetworkService = (*networkService)(nil)

func (s *networkService) describe(ctx context.Context, filters ...*ec2.Filter) ([]*Network, error) {
	out, err := s.p.ec2.DescribeVpcsWithContext(ctx, &ec2.DescribeVpcsInput{Filters: filters})
	if err != nil {
		return nil, translateError("describe", cloud.KindNetwork, "", err)
	}
	result := make([]*Network, 0, len(out.Vpcs))
	for _, vpc := range out.Vpcs {
		result = append(result, &Network{p: s.p, vpc: vpc})
	}
	return result, nil
}

func (s *networkService) collect(ctx context.Context, filters ...*ec2.Filter) ([]cloud.Network, error) {
	found, err := s.describe(ctx, filters...)
	if err != nil {
		return nil, err
	}
	result := make([]cloud.Network, 0, len(found))
	for _, n := range found {
		result = append(result, n)
	}
	return result, nil
}

// List lists every network of the region, the default VPC included
func (s *networkService) List(ctx context.Context) ([]cloud.Network, error) {
	return s.collect(ctx)
}

func (s *networkService) Get(ctx context.Context, f models.Filter) ([]cloud.Network, error) {
	if f.IsEmpty() {
		return []cloud.Network{}, nil
	}
	return s.collect(ctx, filterSet("vpc-id", "tag:"+nameTag, f.IDs, f.Names)...)
}

func (s *networkService) Find(ctx context.Context, name string) (cloud.Network, bool, error) {
	found, err := s.Get(ctx, models.Filter{Names: []string{name}})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *networkService) All(ctx context.Context) iter.Seq2[cloud.Network, error] {
	return cloud.Iterate(ctx, s.List)
}

// Create creates a network tagged with name. EC2 requires a CIDR block, so
// models.DefaultNetworkCIDR is used when cidr is empty.
func (s *networkService) Create(ctx context.Context, name, cidr string) (cloud.Network, error) {
	if err := utils.ValidateResourceName(name); err != nil {
		return nil, fmt.Errorf("invalid network name: %w", err)
	}
	if cidr == "" {
		cidr = models.DefaultNetworkCIDR
	}
	if err := utils.ValidateCIDR(cidr); err != nil {
		return nil, err
	}

	out, err := s.p.ec2.CreateVpcWithContext(ctx, &ec2.CreateVpcInput{
		CidrBlock: aws.String(cidr),
		TagSpecifications: []*ec2.TagSpecification{{
			ResourceType: aws.String(ec2.ResourceTypeVpc),
			Tags:         []*ec2.Tag{{Key: aws.String(nameTag), Value: aws.String(name)}},
		}},
	})
	if err != nil {
		return nil, translateError("create", cloud.KindNetwork, name, err)
	}
	n := &Network{p: s.p, vpc: out.Vpc}
	s.p.log(cloud.KindNetwork).WithFields(logrus.Fields{
		"network_id": n.ID(),
		"name":       name,
		"cidr":       cidr,
	}).Info("Created network")
	return n, nil
}

func (s *networkService) Delete(ctx context.Context, id string) error {
	if _, err := s.p.ec2.DeleteVpcWithContext(ctx, &ec2.DeleteVpcInput{
		VpcId: aws.String(id),
	}); err != nil {
		return translateError("delete", cloud.KindNetwork, id, err)
	}
	s.p.log(cloud.KindNetwork).WithField("network_id", id).Info("Deleted network")
	return nil
}

// Subnet wraps a VPC subnet
type Subnet struct {
	p      *Provider
	subnet *ec2.Subnet
}

var _ cloud.Subnet = (*Subnet)(nil)

func (s *Subnet) ID() string                 { return aws.StringValue(s.subnet.SubnetId) }
func (s *Subnet) Name() string               { return tagValue(s.subnet.Tags, nameTag) }
func (s *Subnet) Kind() cloud.Kind           { return cloud.KindSubnet }
func (s *Subnet) Ref() cloud.Ref             { return s.p.ref(cloud.KindSubnet, s.ID(), nil) }
func (s *Subnet) String() string             { return s.Ref().String() }
func (s *Subnet) CIDR() string               { return aws.StringValue(s.subnet.CidrBlock) }
func (s *Subnet) NetworkID() string          { return aws.StringValue(s.subnet.VpcId) }
func (s *Subnet) ZoneID() string             { return aws.StringValue(s.subnet.AvailabilityZone) }
func (s *Subnet) State() models.NetworkState { return networkState(s.subnet.State) }

func (s *Subnet) Equal(other cloud.Resource) bool {
	return cloud.SameResource(s, other)
}

func (s *Subnet) Delete(ctx context.Context) error {
	return s.p.subnets.Delete(ctx, s.ID())
}

type subnetService struct {
	p *Provider
}

var _ cloud.SubnetService = (*subnetService)(nil)

func (s *subnetService) collect(ctx context.Context, filters ...*ec2.Filter) ([]cloud.Subnet, error) {
	out, err := s.p.ec2.DescribeSubnetsWithContext(ctx, &ec2.DescribeSubnetsInput{Filters: filters})
	if err != nil {
		return nil, translateError("describe", cloud.KindSubnet, "", err)
	}
	result := make([]cloud.Subnet, 0, len(out.Subnets))
	for _, subnet := range out.Subnets {
		result = append(result, &Subnet{p: s.p, subnet: subnet})
	}
	return result, nil
}

// List lists the subnets of every network
func (s *subnetService) List(ctx context.Context) ([]cloud.Subnet, error) {
	return s.collect(ctx)
}

func (s *subnetService) Get(ctx context.Context, f models.Filter) ([]cloud.Subnet, error) {
	if f.IsEmpty() {
		return []cloud.Subnet{}, nil
	}
	return s.collect(ctx, filterSet("subnet-id", "tag:"+nameTag, f.IDs, f.Names)...)
}

func (s *subnetService) Find(ctx context.Context, name string) (cloud.Subnet, bool, error) {
	found, err := s.Get(ctx, models.Filter{Names: []string{name}})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *subnetService) All(ctx context.Context) iter.Seq2[cloud.Subnet, error] {
	return cloud.Iterate(ctx, s.List)
}

// Create creates a subnet of networkID. The CIDR block must lie within the
// network's and must not overlap another subnet.
func (s *subnetService) Create(ctx context.Context, networkID, name, cidr, zone string) (cloud.Subnet, error) {
	if err := utils.ValidateResourceName(name); err != nil {
		return nil, fmt.Errorf("invalid subnet name: %w", err)
	}
	if err := utils.ValidateCIDR(cidr); err != nil {
		return nil, err
	}
	input := &ec2.CreateSubnetInput{
		VpcId:     aws.String(networkID),
		CidrBlock: aws.String(cidr),
		TagSpecifications: []*ec2.TagSpecification{{
			ResourceType: aws.String(ec2.ResourceTypeSubnet),
			Tags:         []*ec2.Tag{{Key: aws.String(nameTag), Value: aws.String(name)}},
		}},
	}
	if zone != "" {
		if err := utils.ValidateAvailabilityZone(zone); err != nil {
			return nil, err
		}
		input.AvailabilityZone = aws.String(zone)
	}

	out, err := s.p.ec2.CreateSubnetWithContext(ctx, input)
	if err != nil {
		return nil, translateError("create", cloud.KindSubnet, name, err)
	}
	subnet := &Subnet{p: s.p, subnet: out.Subnet}
	s.p.log(cloud.KindSubnet).WithFields(logrus.Fields{
		"subnet_id":  subnet.ID(),
		"network_id": networkID,
		"name":       name,
		"cidr":       cidr,
	}).Info("Created subnet")
	return subnet, nil
}

func (s *subnetService) Delete(ctx context.Context, id string) error {
	if _, err := s.p.ec2.DeleteSubnetWithContext(ctx, &ec2.DeleteSubnetInput{
		SubnetId: aws.String(id),
	}); err != nil {
		return translateError("delete", cloud.KindSubnet, id, err)
	}
	s.p.log(cloud.KindSubnet).WithField("subnet_id", id).Info("Deleted subnet")
	return nil
}
