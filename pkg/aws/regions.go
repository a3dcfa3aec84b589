package aws

import (
	"context"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
)

// Region wraps an EC2 region
type Region struct {
	p *Provider
	r *ec2.Region
}

var _ cloud.Region = (*Region)(nil)

func (r *Region) ID() string       { return aws.StringValue(r.r.RegionName) }
func (r *Region) Name() string     { return aws.StringValue(r.r.RegionName) }
func (r *Region) Kind() cloud.Kind { return cloud.KindRegion }
func (r *Region) Ref() cloud.Ref   { return r.p.ref(cloud.KindRegion, r.ID(), nil) }
func (r *Region) String() string   { return r.Ref().String() }
func (r *Region) Endpoint() string { return aws.StringValue(r.r.Endpoint) }

func (r *Region) Equal(other cloud.Resource) bool {
	return cloud.SameResource(r, other)
}

// Zones lists the availability zones of the region, using a client bound to
// that region.
func (r *Region) Zones(ctx context.Context) ([]models.PlacementZone, error) {
	out, err := r.p.clientFor(r.ID()).DescribeAvailabilityZonesWithContext(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []*ec2.Filter{filter("region-name", r.ID())},
	})
	if err != nil {
		return nil, translateError("zones", cloud.KindRegion, r.ID(), err)
	}
	zones := make([]models.PlacementZone, 0, len(out.AvailabilityZones))
	for _, az := range out.AvailabilityZones {
		zones = append(zones, models.PlacementZone{
			Name:   aws.StringValue(az.ZoneName),
			Region: aws.StringValue(az.RegionName),
			State:  aws.StringValue(az.State),
		})
	}
	return zones, nil
}

type regionService struct {
	p *Provider
}

var _ cloud.RegionService = (*regionService)(nil)

func (s *regionService) List(ctx context.Context) ([]cloud.Region, error) {
	out, err := s.p.ec2.DescribeRegionsWithContext(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, translateError("list", cloud.KindRegion, "", err)
	}
	regions := make([]cloud.Region, 0, len(out.Regions))
	for _, r := range out.Regions {
		regions = append(regions, &Region{p: s.p, r: r})
	}
	return regions, nil
}

func (s *regionService) Get(ctx context.Context, name string) (cloud.Region, bool, error) {
	regions, err := s.List(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, r := range regions {
		if r.ID() == name {
			return r, true, nil
		}
	}
	return nil, false, nil
}

// Current returns the region the provider is bound to
func (s *regionService) Current(ctx context.Context) (cloud.Region, error) {
	r, ok, err := s.Get(ctx, s.p.region)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cloud.NotFound("current", cloud.KindRegion, s.p.region)
	}
	return r, nil
}
