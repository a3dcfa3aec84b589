// Package ec2fake is an in-memory implementation of the parts of the EC2 API
// the adapter uses. It keeps the error codes, id formats and eventual state
// transitions of the real service close enough for unit tests.
package ec2fake

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/awsutil"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	uuid "github.com/satori/go.uuid"
)

const (
	// AccountID owns every resource created through the fake
	AccountID = "123456789012"
	// PublicImageID is a seeded image owned by "amazon"
	PublicImageID = "ami-0fake00public0001"
	// DefaultVpcID is used for groups created without a VPC
	DefaultVpcID = "vpc-0fake0default"
	// DefaultVpcCIDR is the address range of the default VPC
	DefaultVpcCIDR = "172.31.0.0/16"
)

// EC2 satisfies ec2iface.EC2API. Methods it does not implement panic through
// the nil embedded interface.
type EC2 struct {
	ec2iface.EC2API

	mu        sync.Mutex
	region    string
	keyPairs  []*ec2.KeyPairInfo
	groups    []*ec2.SecurityGroup
	images    []*ec2.Image
	snapshots []*ec2.Snapshot
	volumes   []*ec2.Volume
	vpcs      []*ec2.Vpc
	subnets   []*ec2.Subnet
	instances []*ec2.Instance
	nextIP    int

	faults map[string][]error
	calls  map[string]int
}

var _ ec2iface.EC2API = (*EC2)(nil)

// New returns an empty fake scoped to region, seeded with one public image
// and the default VPC
func New(region string) *EC2 {
	f := &EC2{
		region: region,
		faults: map[string][]error{},
		calls:  map[string]int{},
	}
	f.vpcs = append(f.vpcs, &ec2.Vpc{
		VpcId:     aws.String(DefaultVpcID),
		CidrBlock: aws.String(DefaultVpcCIDR),
		IsDefault: aws.Bool(true),
		State:     aws.String(ec2.VpcStateAvailable),
		OwnerId:   aws.String(AccountID),
	})
	f.images = append(f.images, &ec2.Image{
		ImageId:      aws.String(PublicImageID),
		Name:         aws.String("amzn2-ami-hvm-fake-x86_64-gp2"),
		Description:  aws.String("Amazon Linux 2 (fake)"),
		OwnerId:      aws.String("amazon"),
		Public:       aws.Bool(true),
		State:        aws.String(ec2.ImageStateAvailable),
		CreationDate: aws.String("2024-01-01T00:00:00.000Z"),
	})
	return f
}

// FailNext queues errors returned by the next calls of op, e.g. "CreateImage"
func (f *EC2) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = append(f.faults[op], errs...)
}

// Calls returns how many times op has been invoked
func (f *EC2) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// call records an invocation and returns a queued fault, if any. The lock
// must be held.
func (f *EC2) call(op string) error {
	f.calls[op]++
	if queue := f.faults[op]; len(queue) > 0 {
		f.faults[op] = queue[1:]
		return queue[0]
	}
	return nil
}

func newID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewV4().String(), "-", "")[:17]
}

func errorf(code, format string, args ...interface{}) error {
	return awserr.New(code, fmt.Sprintf(format, args...), nil)
}

func copyOf[T any](v *T) *T {
	return awsutil.CopyOf(v).(*T)
}

// fieldFunc returns the values a resource has for a filter name, and whether
// the filter name is supported at all.
type fieldFunc func(name string) ([]string, bool)

func matchFilters(filters []*ec2.Filter, fields fieldFunc) (bool, error) {
	for _, filter := range filters {
		name := aws.StringValue(filter.Name)
		have, ok := fields(name)
		if !ok {
			return false, errorf("InvalidParameterValue", "The filter '%s' is invalid", name)
		}
		if !matchAny(aws.StringValueSlice(filter.Values), have) {
			return false, nil
		}
	}
	return true, nil
}

func matchAny(patterns, values []string) bool {
	for _, pattern := range patterns {
		for _, v := range values {
			if ok, _ := path.Match(pattern, v); ok {
				return true
			}
		}
	}
	return false
}

func tagValues(tags []*ec2.Tag, name string) ([]string, bool) {
	key, ok := strings.CutPrefix(name, "tag:")
	if !ok {
		return nil, false
	}
	var out []string
	for _, tag := range tags {
		if aws.StringValue(tag.Key) == key {
			out = append(out, aws.StringValue(tag.Value))
		}
	}
	return out, true
}

// tagsFrom copies the tags of the specifications for resourceType
func tagsFrom(specs []*ec2.TagSpecification, resourceType string) []*ec2.Tag {
	var tags []*ec2.Tag
	for _, spec := range specs {
		if aws.StringValue(spec.ResourceType) == resourceType {
			for _, tag := range spec.Tags {
				tags = append(tags, copyOf(tag))
			}
		}
	}
	return tags
}

func contains(list []*string, v string) bool {
	for _, s := range list {
		if aws.StringValue(s) == v {
			return true
		}
	}
	return false
}
