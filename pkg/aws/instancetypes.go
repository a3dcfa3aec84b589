package aws

import (
	"context"
	"strings"

	"github.com/01000101/cloudbridge/pkg/cloud"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
)

// InstanceType wraps an EC2 instance type description
type InstanceType struct {
	p    *Provider
	info *ec2.InstanceTypeInfo
}

var _ cloud.InstanceType = (*InstanceType)(nil)

func (t *InstanceType) ID() string       { return aws.StringValue(t.info.InstanceType) }
func (t *InstanceType) Name() string     { return aws.StringValue(t.info.InstanceType) }
func (t *InstanceType) Kind() cloud.Kind { return cloud.KindInstanceType }
func (t *InstanceType) Ref() cloud.Ref   { return t.p.ref(cloud.KindInstanceType, t.ID(), nil) }
func (t *InstanceType) String() string   { return t.Ref().String() }

func (t *InstanceType) Equal(other cloud.Resource) bool {
	return cloud.SameResource(t, other)
}

// Family is the part of the name before the size, e.g. "m5d" for m5d.large
func (t *InstanceType) Family() string {
	family, _, _ := strings.Cut(t.Name(), ".")
	return family
}

func (t *InstanceType) VCPUs() int64 {
	if t.info.VCpuInfo == nil {
		return 0
	}
	return aws.Int64Value(t.info.VCpuInfo.DefaultVCpus)
}

func (t *InstanceType) RAM() int64 {
	if t.info.MemoryInfo == nil {
		return 0
	}
	return aws.Int64Value(t.info.MemoryInfo.SizeInMiB)
}

func (t *InstanceType) NumEphemeralDisks() int64 {
	if t.info.InstanceStorageInfo == nil {
		return 0
	}
	var n int64
	for _, disk := range t.info.InstanceStorageInfo.Disks {
		n += aws.Int64Value(disk.Count)
	}
	return n
}

func (t *InstanceType) SizeEphemeralDisks() int64 {
	if t.info.InstanceStorageInfo == nil {
		return 0
	}
	return aws.Int64Value(t.info.InstanceStorageInfo.TotalSizeInGB)
}

type instanceTypeService struct {
	p *Provider
}

var _ cloud.InstanceTypeService = (*instanceTypeService)(nil)

// describe handles pagination of DescribeInstanceTypes
func (s *instanceTypeService) describe(ctx context.Context, input *ec2.DescribeInstanceTypesInput) ([]cloud.InstanceType, error) {
	var result []cloud.InstanceType
	err := s.p.ec2.DescribeInstanceTypesPagesWithContext(ctx, input, func(out *ec2.DescribeInstanceTypesOutput, _ bool) bool {
		if out == nil {
			return false
		}
		for _, info := range out.InstanceTypes {
			result = append(result, &InstanceType{p: s.p, info: info})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *instanceTypeService) List(ctx context.Context) ([]cloud.InstanceType, error) {
	types, err := s.describe(ctx, &ec2.DescribeInstanceTypesInput{})
	if err != nil {
		return nil, translateError("list", cloud.KindInstanceType, "", err)
	}
	return types, nil
}

// Find reports ok == false for names EC2 does not know
func (s *instanceTypeService) Find(ctx context.Context, name string) (cloud.InstanceType, bool, error) {
	types, err := s.describe(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []*string{aws.String(name)},
	})
	if errorCode(err) == "InvalidInstanceType" {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translateError("find", cloud.KindInstanceType, name, err)
	}
	if len(types) == 0 {
		return nil, false, nil
	}
	return types[0], true, nil
}
