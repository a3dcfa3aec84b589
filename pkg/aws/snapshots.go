package aws

import (
	"context"
	"fmt"
	"iter"

	"github.com/01000101/cloudbridge/internal/utils"
	"github.com/01000101/cloudbridge/internal/waiter"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/sirupsen/logrus"
)

var snapshotStates = map[string]models.SnapshotState{
	ec2.SnapshotStatePending:     models.SnapshotStatePending,
	ec2.SnapshotStateCompleted:   models.SnapshotStateAvailable,
	ec2.SnapshotStateError:       models.SnapshotStateError,
	ec2.SnapshotStateRecoverable: models.SnapshotStateConfiguring,
	ec2.SnapshotStateRecovering:  models.SnapshotStateConfiguring,
}

// Snapshot wraps an EBS snapshot
type Snapshot struct {
	p     *Provider
	snap  *ec2.Snapshot
	state models.SnapshotState
}

var _ cloud.Snapshot = (*Snapshot)(nil)

func (s *Snapshot) ID() string                  { return aws.StringValue(s.snap.SnapshotId) }
func (s *Snapshot) Name() string                { return tagValue(s.snap.Tags, nameTag) }
func (s *Snapshot) Kind() cloud.Kind            { return cloud.KindSnapshot }
func (s *Snapshot) Ref() cloud.Ref              { return s.p.ref(cloud.KindSnapshot, s.ID(), nil) }
func (s *Snapshot) String() string              { return s.Ref().String() }
func (s *Snapshot) Description() string         { return aws.StringValue(s.snap.Description) }
func (s *Snapshot) Size() int64                 { return aws.Int64Value(s.snap.VolumeSize) }
func (s *Snapshot) VolumeID() string            { return aws.StringValue(s.snap.VolumeId) }
func (s *Snapshot) State() models.SnapshotState { return s.state }

func (s *Snapshot) Equal(other cloud.Resource) bool {
	return cloud.SameResource(s, other)
}

func (s *Snapshot) CreateVolume(ctx context.Context, opts models.VolumeOptions) (cloud.Volume, error) {
	opts.SnapshotID = s.ID()
	return s.p.volumes.Create(ctx, opts)
}

func (s *Snapshot) Delete(ctx context.Context) error {
	return s.p.snapshots.Delete(ctx, s.ID())
}

// Refresh describes the snapshot again. A deleted snapshot is left in the
// unknown state and reported as not found.
func (s *Snapshot) Refresh(ctx context.Context) error {
	found, err := s.p.snapshots.describe(ctx, &ec2.DescribeSnapshotsInput{
		Filters: []*ec2.Filter{filter("snapshot-id", s.ID())},
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		s.state = models.SnapshotStateUnknown
		return cloud.NotFound("refresh", cloud.KindSnapshot, s.ID())
	}
	s.snap, s.state = found[0].snap, found[0].state
	return nil
}

// WaitTillReady polls until the snapshot has completed
func (s *Snapshot) WaitTillReady(ctx context.Context) error {
	return waiter.Poll(ctx, s.p.waitConfig(cloud.KindSnapshot, s.ID()), func(ctx context.Context) (bool, error) {
		if err := s.Refresh(ctx); err != nil {
			return false, err
		}
		switch s.state {
		case models.SnapshotStateAvailable:
			return true, nil
		case models.SnapshotStateError:
			return false, &cloud.StateError{Kind: cloud.KindSnapshot, ID: s.ID(), State: string(s.state)}
		}
		return false, nil
	})
}

type snapshotService struct {
	p *Provider
}

var _ cloud.SnapshotService = (*snapshotService)(nil)

func (s *snapshotService) wrap(snap *ec2.Snapshot) *Snapshot {
	state, ok := snapshotStates[aws.StringValue(snap.State)]
	if !ok {
		state = models.SnapshotStateUnknown
	}
	return &Snapshot{p: s.p, snap: snap, state: state}
}

func (s *snapshotService) describe(ctx context.Context, input *ec2.DescribeSnapshotsInput) ([]*Snapshot, error) {
	var result []*Snapshot
	err := s.p.ec2.DescribeSnapshotsPagesWithContext(ctx, input, func(out *ec2.DescribeSnapshotsOutput, _ bool) bool {
		if out == nil {
			return false
		}
		for _, snap := range out.Snapshots {
			result = append(result, s.wrap(snap))
		}
		return true
	})
	if err != nil {
		return nil, translateError("describe", cloud.KindSnapshot, "", err)
	}
	return result, nil
}

func (s *snapshotService) collect(ctx context.Context, input *ec2.DescribeSnapshotsInput) ([]cloud.Snapshot, error) {
	found, err := s.describe(ctx, input)
	if err != nil {
		return nil, err
	}
	result := make([]cloud.Snapshot, 0, len(found))
	for _, snap := range found {
		result = append(result, snap)
	}
	return result, nil
}

// List returns the snapshots owned by the account; EC2 would otherwise
// include every public snapshot
func (s *snapshotService) List(ctx context.Context) ([]cloud.Snapshot, error) {
	return s.collect(ctx, &ec2.DescribeSnapshotsInput{
		OwnerIds: aws.StringSlice([]string{"self"}),
	})
}

// Get looks snapshots up by id across all owners; name lookups are
// restricted to the account's own snapshots.
func (s *snapshotService) Get(ctx context.Context, f models.Filter) ([]cloud.Snapshot, error) {
	if f.IsEmpty() {
		return []cloud.Snapshot{}, nil
	}
	input := &ec2.DescribeSnapshotsInput{
		Filters: filterSet("snapshot-id", "tag:"+nameTag, f.IDs, f.Names),
	}
	if len(f.IDs) == 0 {
		input.OwnerIds = aws.StringSlice([]string{"self"})
	}
	return s.collect(ctx, input)
}

func (s *snapshotService) Find(ctx context.Context, name string) (cloud.Snapshot, bool, error) {
	found, err := s.Get(ctx, models.Filter{Names: []string{name}})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *snapshotService) All(ctx context.Context) iter.Seq2[cloud.Snapshot, error] {
	return cloud.Iterate(ctx, s.List)
}

// Create starts a snapshot of a volume. The snapshot is pending until EC2
// has copied the volume; see Snapshot.WaitTillReady.
func (s *snapshotService) Create(ctx context.Context, name, volumeID, description string) (cloud.Snapshot, error) {
	if err := utils.ValidateResourceName(name); err != nil {
		return nil, fmt.Errorf("invalid snapshot name: %w", err)
	}
	input := &ec2.CreateSnapshotInput{
		VolumeId: aws.String(volumeID),
		TagSpecifications: []*ec2.TagSpecification{{
			ResourceType: aws.String(ec2.ResourceTypeSnapshot),
			Tags:         []*ec2.Tag{{Key: aws.String(nameTag), Value: aws.String(name)}},
		}},
	}
	if description != "" {
		input.Description = aws.String(description)
	}

	out, err := s.p.ec2.CreateSnapshotWithContext(ctx, input)
	if err != nil {
		return nil, translateError("create", cloud.KindSnapshot, name, err)
	}
	snap := s.wrap(out)
	s.p.log(cloud.KindSnapshot).WithFields(logrus.Fields{
		"snapshot_id": snap.ID(),
		"volume_id":   volumeID,
		"name":        name,
	}).Info("Created snapshot")
	return snap, nil
}

// Delete deletes a snapshot. Snapshots backing a registered image cannot be
// deleted and the error is returned as is.
func (s *snapshotService) Delete(ctx context.Context, id string) error {
	if _, err := s.p.ec2.DeleteSnapshotWithContext(ctx, &ec2.DeleteSnapshotInput{
		SnapshotId: aws.String(id),
	}); err != nil {
		return translateError("delete", cloud.KindSnapshot, id, err)
	}
	s.p.log(cloud.KindSnapshot).WithField("snapshot_id", id).Info("Deleted snapshot")
	return nil
}
