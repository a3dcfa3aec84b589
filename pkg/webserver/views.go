package webserver

import (
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"
)

// ResourceView is the JSON rendering shared by every handle
type ResourceView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}

func resourceView(r cloud.Resource) ResourceView {
	return ResourceView{ID: r.ID(), Name: r.Name(), Kind: string(r.Kind()), Ref: r.Ref().String()}
}

type keyPairView struct {
	ResourceView
	Fingerprint string `json:"fingerprint"`
}

type securityGroupView struct {
	ResourceView
	Description string `json:"description"`
	VpcID       string `json:"vpc_id,omitempty"`
}

type ruleView struct {
	ResourceView
	Protocol    string `json:"protocol"`
	FromPort    int64  `json:"from_port"`
	ToPort      int64  `json:"to_port"`
	CIDR        string `json:"cidr,omitempty"`
	SourceGroup string `json:"source_group,omitempty"`
}

type imageView struct {
	ResourceView
	Description string            `json:"description,omitempty"`
	State       models.ImageState `json:"state"`
}

type instanceView struct {
	ResourceView
	State          models.InstanceState `json:"state"`
	InstanceType   string               `json:"instance_type"`
	ImageID        string               `json:"image_id"`
	KeyPairName    string               `json:"key_pair,omitempty"`
	Zone           models.PlacementZone `json:"zone"`
	PublicIPs      []string             `json:"public_ips"`
	PrivateIPs     []string             `json:"private_ips"`
	SecurityGroups []string             `json:"security_groups"`
}

type volumeView struct {
	ResourceView
	Description string             `json:"description,omitempty"`
	Size        int64              `json:"size_gib"`
	Zone        string             `json:"zone"`
	Snapshot    string             `json:"snapshot_id,omitempty"`
	AttachedTo  string             `json:"attached_to,omitempty"`
	Device      string             `json:"device,omitempty"`
	State       models.VolumeState `json:"state"`
}

type snapshotView struct {
	ResourceView
	Description string               `json:"description,omitempty"`
	Size        int64                `json:"size_gib"`
	VolumeID    string               `json:"volume_id"`
	State       models.SnapshotState `json:"state"`
}

type networkView struct {
	ResourceView
	CIDR      string              `json:"cidr"`
	IsDefault bool                `json:"is_default"`
	State     models.NetworkState `json:"state"`
}

type subnetView struct {
	ResourceView
	CIDR      string              `json:"cidr"`
	NetworkID string              `json:"network_id"`
	Zone      string              `json:"zone"`
	State     models.NetworkState `json:"state"`
}

type regionView struct {
	ResourceView
	Endpoint string `json:"endpoint"`
}

type instanceTypeView struct {
	ResourceView
	Family             string `json:"family"`
	VCPUs              int64  `json:"vcpus"`
	RAM                int64  `json:"ram_mib"`
	NumEphemeralDisks  int64  `json:"num_ephemeral_disks"`
	SizeEphemeralDisks int64  `json:"size_ephemeral_disks_gib"`
}

func viewKeyPair(kp cloud.KeyPair) any {
	return keyPairView{ResourceView: resourceView(kp), Fingerprint: kp.Fingerprint()}
}

func viewSecurityGroup(sg cloud.SecurityGroup) any {
	return securityGroupView{ResourceView: resourceView(sg), Description: sg.Description(), VpcID: sg.VpcID()}
}

func viewRule(r cloud.SecurityGroupRule) any {
	v := ruleView{
		ResourceView: resourceView(r),
		Protocol:     r.Protocol(),
		FromPort:     r.FromPort(),
		ToPort:       r.ToPort(),
		CIDR:         r.CIDR(),
	}
	if src := r.SourceGroup(); src != nil {
		v.SourceGroup = src.ID()
	}
	return v
}

func viewImage(img cloud.Image) any {
	return imageView{ResourceView: resourceView(img), Description: img.Description(), State: img.State()}
}

func viewInstance(inst cloud.Instance) any {
	groups := []string{}
	for _, sg := range inst.SecurityGroups() {
		groups = append(groups, sg.ID())
	}
	return instanceView{
		ResourceView:   resourceView(inst),
		State:          inst.State(),
		InstanceType:   inst.InstanceType(),
		ImageID:        inst.ImageID(),
		KeyPairName:    inst.KeyPairName(),
		Zone:           inst.PlacementZone(),
		PublicIPs:      inst.PublicIPs(),
		PrivateIPs:     inst.PrivateIPs(),
		SecurityGroups: groups,
	}
}

func viewVolume(v cloud.Volume) any {
	return volumeView{
		ResourceView: resourceView(v),
		Description:  v.Description(),
		Size:         v.Size(),
		Zone:         v.ZoneID(),
		Snapshot:     v.SourceSnapshotID(),
		AttachedTo:   v.AttachedTo(),
		Device:       v.Device(),
		State:        v.State(),
	}
}

func viewSnapshot(s cloud.Snapshot) any {
	return snapshotView{
		ResourceView: resourceView(s),
		Description:  s.Description(),
		Size:         s.Size(),
		VolumeID:     s.VolumeID(),
		State:        s.State(),
	}
}

func viewNetwork(n cloud.Network) any {
	return networkView{ResourceView: resourceView(n), CIDR: n.CIDR(), IsDefault: n.IsDefault(), State: n.State()}
}

func viewSubnet(s cloud.Subnet) any {
	return subnetView{ResourceView: resourceView(s), CIDR: s.CIDR(), NetworkID: s.NetworkID(), Zone: s.ZoneID(), State: s.State()}
}

func viewRegion(r cloud.Region) any {
	return regionView{ResourceView: resourceView(r), Endpoint: r.Endpoint()}
}

func viewInstanceType(t cloud.InstanceType) any {
	return instanceTypeView{
		ResourceView:       resourceView(t),
		Family:             t.Family(),
		VCPUs:              t.VCPUs(),
		RAM:                t.RAM(),
		NumEphemeralDisks:  t.NumEphemeralDisks(),
		SizeEphemeralDisks: t.SizeEphemeralDisks(),
	}
}
