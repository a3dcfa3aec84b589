package aws

import (
	"context"
	"fmt"
	"iter"

	"github.com/01000101/cloudbridge/internal/waiter"
	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/sirupsen/logrus"
)

var imageStates = map[string]models.ImageState{
	ec2.ImageStatePending:      models.ImageStatePending,
	ec2.ImageStateTransient:    models.ImageStatePending,
	ec2.ImageStateAvailable:    models.ImageStateAvailable,
	ec2.ImageStateDeregistered: models.ImageStateUnknown,
	ec2.ImageStateFailed:       models.ImageStateError,
	ec2.ImageStateError:        models.ImageStateError,
	ec2.ImageStateInvalid:      models.ImageStateError,
}

// Image wraps an EC2 machine image
type Image struct {
	p     *Provider
	img   *ec2.Image
	state models.ImageState
}

var _ cloud.Image = (*Image)(nil)

func (i *Image) ID() string               { return aws.StringValue(i.img.ImageId) }
func (i *Image) Name() string             { return aws.StringValue(i.img.Name) }
func (i *Image) Kind() cloud.Kind         { return cloud.KindImage }
func (i *Image) Ref() cloud.Ref           { return i.p.ref(cloud.KindImage, i.ID(), nil) }
func (i *Image) String() string           { return i.Ref().String() }
func (i *Image) Description() string      { return aws.StringValue(i.img.Description) }
func (i *Image) State() models.ImageState { return i.state }

func (i *Image) Equal(other cloud.Resource) bool {
	return cloud.SameResource(i, other)
}

func (i *Image) Delete(ctx context.Context) error {
	return i.p.images.Delete(ctx, i.ID())
}

// Refresh describes the image again. A deregistered image is left in the
// unknown state and reported as not found.
func (i *Image) Refresh(ctx context.Context) error {
	found, err := i.p.images.describe(ctx, &ec2.DescribeImagesInput{
		Filters: []*ec2.Filter{filter("image-id", i.ID())},
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		i.state = models.ImageStateUnknown
		return cloud.NotFound("refresh", cloud.KindImage, i.ID())
	}
	i.img, i.state = found[0].img, found[0].state
	return nil
}

// WaitTillReady polls until the image is available
func (i *Image) WaitTillReady(ctx context.Context) error {
	return waiter.Poll(ctx, i.p.waitConfig(cloud.KindImage, i.ID()), func(ctx context.Context) (bool, error) {
		if err := i.Refresh(ctx); err != nil {
			return false, err
		}
		switch i.state {
		case models.ImageStateAvailable:
			return true, nil
		case models.ImageStateError:
			return false, &cloud.StateError{Kind: cloud.KindImage, ID: i.ID(), State: string(i.state)}
		}
		return false, nil
	})
}

func (i *Image) snapshotIDs() []string {
	var ids []string
	for _, bdm := range i.img.BlockDeviceMappings {
		if bdm.Ebs != nil && bdm.Ebs.SnapshotId != nil {
			ids = append(ids, aws.StringValue(bdm.Ebs.SnapshotId))
		}
	}
	return ids
}

type imageService struct {
	p *Provider
}

var _ cloud.ImageService = (*imageService)(nil)

func (s *imageService) wrap(img *ec2.Image) *Image {
	state, ok := imageStates[aws.StringValue(img.State)]
	if !ok {
		state = models.ImageStateUnknown
	}
	return &Image{p: s.p, img: img, state: state}
}

func (s *imageService) describe(ctx context.Context, input *ec2.DescribeImagesInput) ([]*Image, error) {
	out, err := s.p.ec2.DescribeImagesWithContext(ctx, input)
	if err != nil {
		return nil, translateError("describe", cloud.KindImage, "", err)
	}
	result := make([]*Image, 0, len(out.Images))
	for _, img := range out.Images {
		result = append(result, s.wrap(img))
	}
	return result, nil
}

func (s *imageService) collect(ctx context.Context, input *ec2.DescribeImagesInput) ([]cloud.Image, error) {
	found, err := s.describe(ctx, input)
	if err != nil {
		return nil, err
	}
	result := make([]cloud.Image, 0, len(found))
	for _, img := range found {
		result = append(result, img)
	}
	return result, nil
}

// List returns the images owned by the configured owners
func (s *imageService) List(ctx context.Context) ([]cloud.Image, error) {
	return s.collect(ctx, &ec2.DescribeImagesInput{
		Owners: aws.StringSlice(s.p.imageOwners),
	})
}

// Get looks images up by id across all owners; name lookups are restricted
// to the configured owners.
func (s *imageService) Get(ctx context.Context, f models.Filter) ([]cloud.Image, error) {
	if f.IsEmpty() {
		return []cloud.Image{}, nil
	}
	input := &ec2.DescribeImagesInput{
		Filters: filterSet("image-id", "name", f.IDs, f.Names),
	}
	if len(f.IDs) == 0 {
		input.Owners = aws.StringSlice(s.p.imageOwners)
	}
	return s.collect(ctx, input)
}

func (s *imageService) Find(ctx context.Context, name string) (cloud.Image, bool, error) {
	found, err := s.Get(ctx, models.Filter{Names: []string{name}})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *imageService) All(ctx context.Context) iter.Seq2[cloud.Image, error] {
	return cloud.Iterate(ctx, s.List)
}

// Delete deregisters the image and then deletes the EBS snapshots backing it
func (s *imageService) Delete(ctx context.Context, id string) error {
	found, err := s.describe(ctx, &ec2.DescribeImagesInput{
		Filters: []*ec2.Filter{filter("image-id", id)},
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return cloud.NotFound("delete", cloud.KindImage, id)
	}
	img := found[0]
	logger := s.p.log(cloud.KindImage).WithField("image_id", id)

	if _, err := s.p.ec2.DeregisterImageWithContext(ctx, &ec2.DeregisterImageInput{
		ImageId: aws.String(id),
	}); err != nil {
		return translateError("delete", cloud.KindImage, id, err)
	}

	for _, snapshotID := range img.snapshotIDs() {
		_, err := s.p.ec2.DeleteSnapshotWithContext(ctx, &ec2.DeleteSnapshotInput{
			SnapshotId: aws.String(snapshotID),
		})
		if err != nil && !isNotFoundCode(errorCode(err)) {
			return fmt.Errorf("image %s deregistered but snapshot %s was not deleted: %w",
				id, snapshotID, translateError("delete_snapshot", cloud.KindImage, id, err))
		}
		logger.WithField("snapshot_id", snapshotID).Debug("Deleted image snapshot")
	}

	logger.WithFields(logrus.Fields{
		"name": img.Name(),
	}).Info("Deleted image")
	return nil
}

func (p *Provider) waitConfig(kind cloud.Kind, id string) waiter.Config {
	return waiter.Config{
		Resource: fmt.Sprintf("%s %s", kind, id),
		Interval: p.waitInterval,
		Timeout:  p.waitTimeout,
		Logger:   p.log(kind),
	}
}
