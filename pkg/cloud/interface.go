package cloud

import (
	"context"
	"fmt"
	"iter"

	"github.com/01000101/cloudbridge/pkg/models"
)

// Kind identifies the type of a resource handle
type Kind string

const (
	KindKeyPair           Kind = "keypair"
	KindSecurityGroup     Kind = "securitygroup"
	KindSecurityGroupRule Kind = "securitygrouprule"
	KindImage             Kind = "image"
	KindInstance          Kind = "instance"
	KindRegion            Kind = "region"
	KindInstanceType      Kind = "instancetype"
	KindVolume            Kind = "volume"
	KindSnapshot          Kind = "snapshot"
	KindNetwork           Kind = "network"
	KindSubnet            Kind = "subnet"
)

// Resource is the contract shared by every handle. Handles are produced by a
// backend adapter and wrap one backend-native object; callers never build them.
// Refresh, SetName and the lifecycle waits update the handle in place, so a
// handle must not be used from several goroutines while one of them runs.
type Resource interface {
	fmt.Stringer

	// ID is the backend-assigned identifier, stable for the handle's lifetime
	ID() string
	// Name is the human-readable name; may be empty
	Name() string
	Kind() Kind
	// Ref is the parseable identity of the resource; String() renders it
	Ref() Ref
	// Equal reports identity equality: same kind, same backend, same id
	Equal(other Resource) bool
}

// KeyPair is an SSH key pair registered with the backend
type KeyPair interface {
	Resource

	Fingerprint() string
	// Material is the unencrypted private key. It is only available on the
	// handle returned by the call that created the key pair.
	Material() string
	Delete(ctx context.Context) error
}

// SecurityGroup is a named set of ingress rules
type SecurityGroup interface {
	Resource

	Description() string
	VpcID() string
	// Rules fetches the current rules from the backend. It fails with
	// ErrNotFound once the group has been deleted.
	Rules(ctx context.Context) ([]SecurityGroupRule, error)
	AddRule(ctx context.Context, spec models.RuleSpec) error
	RemoveRule(ctx context.Context, rule SecurityGroupRule) error
	Delete(ctx context.Context) error
}

// SecurityGroupRule is one ingress permission of a security group. Either
// CIDR is set or SourceGroup is non-nil, never both.
type SecurityGroupRule interface {
	Resource

	Protocol() string
	FromPort() int64
	ToPort() int64
	CIDR() string
	// SourceGroup is a partially populated handle (id and name only)
	SourceGroup() SecurityGroup
	Parent() SecurityGroup
}

// Image is a machine image instances can be launched from
type Image interface {
	Resource

	Description() string
	State() models.ImageState
	Refresh(ctx context.Context) error
	WaitTillReady(ctx context.Context) error
	Delete(ctx context.Context) error
}

// Instance is a running (or stopped) virtual machine
type Instance interface {
	Resource

	// SetName writes the name to the backend immediately. Name() reflects the
	// last describe or the last successful SetName on this handle.
	SetName(ctx context.Context, name string) error
	PublicIPs() []string
	PrivateIPs() []string
	InstanceType() string
	ImageID() string
	PlacementZone() models.PlacementZone
	KeyPairName() string
	// SecurityGroups returns partially populated handles (id and name only)
	SecurityGroups() []SecurityGroup
	// MACAddress fails with ErrNotSupported on backends that do not expose it
	MACAddress() (string, error)
	State() models.InstanceState

	Reboot(ctx context.Context) error
	Terminate(ctx context.Context) error
	Delete(ctx context.Context) error
	CreateImage(ctx context.Context, name string) (Image, error)
	Refresh(ctx context.Context) error
	WaitFor(ctx context.Context, targets, terminals []models.InstanceState) error
	WaitTillReady(ctx context.Context) error
}

// Volume is a block storage volume that can be attached to one instance
type Volume interface {
	Resource

	Description() string
	Size() int64 // GiB
	ZoneID() string
	// SourceSnapshotID is the snapshot the volume was restored from, if any
	SourceSnapshotID() string
	// AttachedTo is the id of the instance the volume is attached to, or ""
	AttachedTo() string
	Device() string
	State() models.VolumeState

	Attach(ctx context.Context, instanceID, device string) error
	Detach(ctx context.Context) error
	CreateSnapshot(ctx context.Context, name, description string) (Snapshot, error)
	Refresh(ctx context.Context) error
	WaitFor(ctx context.Context, targets, terminals []models.VolumeState) error
	WaitTillReady(ctx context.Context) error
	Delete(ctx context.Context) error
}

// Snapshot is a point in time copy of a volume
type Snapshot interface {
	Resource

	Description() string
	Size() int64 // GiB
	VolumeID() string
	State() models.SnapshotState

	// CreateVolume restores the snapshot; opts.SnapshotID is ignored
	CreateVolume(ctx context.Context, opts models.VolumeOptions) (Volume, error)
	Refresh(ctx context.Context) error
	WaitTillReady(ctx context.Context) error
	Delete(ctx context.Context) error
}

// Network is an isolated private network (a VPC on AWS)
type Network interface {
	Resource

	CIDR() string
	IsDefault() bool
	State() models.NetworkState

	Subnets(ctx context.Context) ([]Subnet, error)
	CreateSubnet(ctx context.Context, name, cidr, zone string) (Subnet, error)
	Refresh(ctx context.Context) error
	Delete(ctx context.Context) error
}

// Subnet is an address range of a network within one zone
type Subnet interface {
	Resource

	CIDR() string
	NetworkID() string
	ZoneID() string
	State() models.NetworkState
	Delete(ctx context.Context) error
}

// Region is a backend region
type Region interface {
	Resource

	Endpoint() string
	Zones(ctx context.Context) ([]models.PlacementZone, error)
}

// InstanceType describes a machine size offered by the backend
type InstanceType interface {
	Resource

	Family() string
	VCPUs() int64
	RAM() int64 // MiB
	NumEphemeralDisks() int64
	SizeEphemeralDisks() int64 // GiB
}

// Lister is the read side shared by every resource service
type Lister[T Resource] interface {
	List(ctx context.Context) ([]T, error)
}

// ResourceService is the uniform CRUD contract of a resource kind
type ResourceService[T Resource] interface {
	Lister[T]

	// Get returns the resources matching the filter, or an empty slice
	Get(ctx context.Context, filter models.Filter) ([]T, error)
	// Find returns ok == false when nothing has the given name
	Find(ctx context.Context, name string) (T, bool, error)
	// All ranges over a fresh List snapshot each time it is iterated
	All(ctx context.Context) iter.Seq2[T, error]
	// Delete fails with ErrNotFound when the resource does not exist
	Delete(ctx context.Context, id string) error
}

// KeyPairService manages key pairs. The id of a key pair is its name.
type KeyPairService interface {
	ResourceService[KeyPair]

	Create(ctx context.Context, name string) (KeyPair, error)
	Import(ctx context.Context, name string, publicKey []byte) (KeyPair, error)
}

// SecurityGroupService manages security groups
type SecurityGroupService interface {
	ResourceService[SecurityGroup]

	Create(ctx context.Context, name, description, vpcID string) (SecurityGroup, error)
}

// ImageService manages machine images
type ImageService interface {
	ResourceService[Image]
}

// InstanceService manages instances
type InstanceService interface {
	ResourceService[Instance]

	Create(ctx context.Context, opts models.LaunchOptions) (Instance, error)
}

// VolumeService manages block volumes
type VolumeService interface {
	ResourceService[Volume]

	Create(ctx context.Context, opts models.VolumeOptions) (Volume, error)
}

// SnapshotService manages volume snapshots
type SnapshotService interface {
	ResourceService[Snapshot]

	Create(ctx context.Context, name, volumeID, description string) (Snapshot, error)
}

// NetworkService manages networks. An empty cidr selects
// models.DefaultNetworkCIDR.
type NetworkService interface {
	ResourceService[Network]

	Create(ctx context.Context, name, cidr string) (Network, error)
}

// SubnetService manages subnets. An empty zone lets the backend choose.
type SubnetService interface {
	ResourceService[Subnet]

	Create(ctx context.Context, networkID, name, cidr, zone string) (Subnet, error)
}

// BlockStoreService groups the block storage services
type BlockStoreService interface {
	Volumes() VolumeService
	Snapshots() SnapshotService
}

// NetworkingService groups the network services
type NetworkingService interface {
	Networks() NetworkService
	Subnets() SubnetService
}

// SecurityService groups the security related services
type SecurityService interface {
	KeyPairs() KeyPairService
	SecurityGroups() SecurityGroupService
}

// RegionService lists backend regions
type RegionService interface {
	Lister[Region]

	Get(ctx context.Context, name string) (Region, bool, error)
	Current(ctx context.Context) (Region, error)
}

// InstanceTypeService lists instance types
type InstanceTypeService interface {
	Lister[InstanceType]

	Find(ctx context.Context, name string) (InstanceType, bool, error)
}

// Provider is the façade over a single backend session
type Provider interface {
	// Name identifies the backend, e.g. "aws"
	Name() string
	Region() string
	ValidateCredentials(ctx context.Context) error

	Security() SecurityService
	BlockStore() BlockStoreService
	Network() NetworkingService
	Images() ImageService
	Instances() InstanceService
	InstanceTypes() InstanceTypeService
	Regions() RegionService
}
