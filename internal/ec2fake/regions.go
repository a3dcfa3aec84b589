package ec2fake

import (
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
)

// Regions are the regions the fake reports
var Regions = []string{"eu-west-1", "us-east-1", "us-east-2", "us-west-2"}

type instanceTypeSpec struct {
	vcpus, memory, disks, diskSize int64
}

var instanceTypes = map[string]instanceTypeSpec{
	"t2.nano":   {vcpus: 1, memory: 512},
	"t2.micro":  {vcpus: 1, memory: 1024},
	"t3.medium": {vcpus: 2, memory: 4096},
	"m5.large":  {vcpus: 2, memory: 8192},
	"m5d.large": {vcpus: 2, memory: 8192, disks: 1, diskSize: 75},
	"c5.xlarge": {vcpus: 4, memory: 8192},
	"i3.xlarge": {vcpus: 4, memory: 31232, disks: 1, diskSize: 950},
}

// InstanceTypePageSize is the page size of DescribeInstanceTypes
const InstanceTypePageSize = 3

func (f *EC2) DescribeRegionsWithContext(_ aws.Context, input *ec2.DescribeRegionsInput, _ ...request.Option) (*ec2.DescribeRegionsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeRegions"); err != nil {
		return nil, err
	}

	out := &ec2.DescribeRegionsOutput{}
	for _, name := range Regions {
		if len(input.RegionNames) > 0 && !contains(input.RegionNames, name) {
			continue
		}
		out.Regions = append(out.Regions, &ec2.Region{
			RegionName:  aws.String(name),
			Endpoint:    aws.String(fmt.Sprintf("ec2.%s.amazonaws.com", name)),
			OptInStatus: aws.String("opt-in-not-required"),
		})
	}
	return out, nil
}

func (f *EC2) DescribeAvailabilityZonesWithContext(_ aws.Context, input *ec2.DescribeAvailabilityZonesInput, _ ...request.Option) (*ec2.DescribeAvailabilityZonesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeAvailabilityZones"); err != nil {
		return nil, err
	}

	out := &ec2.DescribeAvailabilityZonesOutput{}
	for _, region := range Regions {
		for _, suffix := range []string{"a", "b", "c"} {
			zone := region + suffix
			ok, err := matchFilters(input.Filters, func(name string) ([]string, bool) {
				switch name {
				case "region-name":
					return []string{region}, true
				case "zone-name":
					return []string{zone}, true
				case "state":
					return []string{ec2.AvailabilityZoneStateAvailable}, true
				}
				return nil, false
			})
			if err != nil {
				return nil, err
			}
			// without a region filter EC2 only reports the client's region
			if !ok || (len(input.Filters) == 0 && region != f.region) {
				continue
			}
			out.AvailabilityZones = append(out.AvailabilityZones, &ec2.AvailabilityZone{
				ZoneName:   aws.String(zone),
				RegionName: aws.String(region),
				State:      aws.String(ec2.AvailabilityZoneStateAvailable),
				ZoneType:   aws.String("availability-zone"),
			})
		}
	}
	return out, nil
}

func instanceTypeInfo(name string, spec instanceTypeSpec) *ec2.InstanceTypeInfo {
	info := &ec2.InstanceTypeInfo{
		InstanceType:             aws.String(name),
		VCpuInfo:                 &ec2.VCpuInfo{DefaultVCpus: aws.Int64(spec.vcpus)},
		MemoryInfo:               &ec2.MemoryInfo{SizeInMiB: aws.Int64(spec.memory)},
		InstanceStorageSupported: aws.Bool(spec.disks > 0),
	}
	if spec.disks > 0 {
		info.InstanceStorageInfo = &ec2.InstanceStorageInfo{
			TotalSizeInGB: aws.Int64(spec.disks * spec.diskSize),
			Disks: []*ec2.DiskInfo{{
				Count:    aws.Int64(spec.disks),
				SizeInGB: aws.Int64(spec.diskSize),
				Type:     aws.String(ec2.DiskTypeSsd),
			}},
		}
	}
	return info
}

func (f *EC2) DescribeInstanceTypesWithContext(_ aws.Context, input *ec2.DescribeInstanceTypesInput, _ ...request.Option) (*ec2.DescribeInstanceTypesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DescribeInstanceTypes"); err != nil {
		return nil, err
	}

	names := aws.StringValueSlice(input.InstanceTypes)
	for _, name := range names {
		if _, ok := instanceTypes[name]; !ok {
			return nil, errorf("InvalidInstanceType", "The following supplied instance types do not exist: [%s]", name)
		}
	}
	if len(names) == 0 {
		for name := range instanceTypes {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	start := 0
	if token := aws.StringValue(input.NextToken); token != "" {
		if _, err := fmt.Sscanf(token, "page-%d", &start); err != nil || start > len(names) {
			return nil, errorf("InvalidPaginationToken", "invalid token %s", token)
		}
	}
	end := start + InstanceTypePageSize
	out := &ec2.DescribeInstanceTypesOutput{}
	if end < len(names) {
		out.NextToken = aws.String(fmt.Sprintf("page-%d", end))
	} else {
		end = len(names)
	}
	for _, name := range names[start:end] {
		out.InstanceTypes = append(out.InstanceTypes, instanceTypeInfo(name, instanceTypes[name]))
	}
	return out, nil
}

func (f *EC2) DescribeInstanceTypesPagesWithContext(ctx aws.Context, input *ec2.DescribeInstanceTypesInput, fn func(*ec2.DescribeInstanceTypesOutput, bool) bool, opts ...request.Option) error {
	in := *input
	for {
		out, err := f.DescribeInstanceTypesWithContext(ctx, &in, opts...)
		if err != nil {
			return err
		}
		last := out.NextToken == nil
		if !fn(out, last) || last {
			return nil
		}
		in.NextToken = out.NextToken
	}
}
