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

// KeyPair wraps an EC2 key pair. Its id is the key name.
type KeyPair struct {
	p        *Provider
	kp       *ec2.KeyPairInfo
	material string
}

var _ cloud.KeyPair = (*KeyPair)(nil)

func (k *KeyPair) ID() string          { return aws.StringValue(k.kp.KeyName) }
func (k *KeyPair) Name() string        { return aws.StringValue(k.kp.KeyName) }
func (k *KeyPair) Kind() cloud.Kind    { return cloud.KindKeyPair }
func (k *KeyPair) Ref() cloud.Ref      { return k.p.ref(cloud.KindKeyPair, k.ID(), nil) }
func (k *KeyPair) String() string      { return k.Ref().String() }
func (k *KeyPair) Fingerprint() string { return aws.StringValue(k.kp.KeyFingerprint) }
func (k *KeyPair) Material() string    { return k.material }

func (k *KeyPair) Equal(other cloud.Resource) bool {
	return cloud.SameResource(k, other)
}

func (k *KeyPair) Delete(ctx context.Context) error {
	return k.p.keyPairs.Delete(ctx, k.ID())
}

type keyPairService struct {
	p *Provider
}

var _ cloud.KeyPairService = (*keyPairService)(nil)

func (s *keyPairService) wrap(kp *ec2.KeyPairInfo) cloud.KeyPair {
	return &KeyPair{p: s.p, kp: kp}
}

func (s *keyPairService) describe(ctx context.Context, input *ec2.DescribeKeyPairsInput) ([]cloud.KeyPair, error) {
	out, err := s.p.ec2.DescribeKeyPairsWithContext(ctx, input)
	if err != nil {
		return nil, translateError("describe", cloud.KindKeyPair, "", err)
	}
	result := make([]cloud.KeyPair, 0, len(out.KeyPairs))
	for _, kp := range out.KeyPairs {
		result = append(result, s.wrap(kp))
	}
	return result, nil
}

func (s *keyPairService) List(ctx context.Context) ([]cloud.KeyPair, error) {
	return s.describe(ctx, &ec2.DescribeKeyPairsInput{})
}

// Get matches ids and names against the key name, which is both
func (s *keyPairService) Get(ctx context.Context, f models.Filter) ([]cloud.KeyPair, error) {
	if f.IsEmpty() {
		return []cloud.KeyPair{}, nil
	}
	return s.describe(ctx, &ec2.DescribeKeyPairsInput{
		Filters: filterSet("key-name", "key-name", f.IDs, f.Names),
	})
}

func (s *keyPairService) Find(ctx context.Context, name string) (cloud.KeyPair, bool, error) {
	found, err := s.Get(ctx, models.Filter{Names: []string{name}})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *keyPairService) All(ctx context.Context) iter.Seq2[cloud.KeyPair, error] {
	return cloud.Iterate(ctx, s.List)
}

// Create creates a key pair. When the name is taken, the existing key pair
// is returned without private key material.
func (s *keyPairService) Create(ctx context.Context, name string) (cloud.KeyPair, error) {
	if err := utils.ValidateResourceName(name); err != nil {
		return nil, fmt.Errorf("invalid key pair name: %w", err)
	}
	logger := s.p.log(cloud.KindKeyPair).WithField("key_pair", name)

	out, err := s.p.ec2.CreateKeyPairWithContext(ctx, &ec2.CreateKeyPairInput{
		KeyName: aws.String(name),
	})
	if errorCode(err) == "InvalidKeyPair.Duplicate" {
		logger.Debug("Key pair already exists, returning the existing one")
		return s.existing(ctx, name)
	}
	if err != nil {
		return nil, translateError("create", cloud.KindKeyPair, name, err)
	}

	logger.WithField("fingerprint", aws.StringValue(out.KeyFingerprint)).Info("Created key pair")
	return &KeyPair{
		p: s.p,
		kp: &ec2.KeyPairInfo{
			KeyName:        out.KeyName,
			KeyPairId:      out.KeyPairId,
			KeyFingerprint: out.KeyFingerprint,
		},
		material: aws.StringValue(out.KeyMaterial),
	}, nil
}

// Import registers an existing public key under name, with the same
// duplicate policy as Create.
func (s *keyPairService) Import(ctx context.Context, name string, publicKey []byte) (cloud.KeyPair, error) {
	if err := utils.ValidateResourceName(name); err != nil {
		return nil, fmt.Errorf("invalid key pair name: %w", err)
	}
	logger := s.p.log(cloud.KindKeyPair).WithField("key_pair", name)

	out, err := s.p.ec2.ImportKeyPairWithContext(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(name),
		PublicKeyMaterial: publicKey,
	})
	if errorCode(err) == "InvalidKeyPair.Duplicate" {
		logger.Debug("Key pair already exists, returning the existing one")
		return s.existing(ctx, name)
	}
	if err != nil {
		return nil, translateError("import", cloud.KindKeyPair, name, err)
	}

	logger.WithFields(logrus.Fields{
		"fingerprint": aws.StringValue(out.KeyFingerprint),
	}).Info("Imported key pair")
	return s.wrap(&ec2.KeyPairInfo{
		KeyName:        out.KeyName,
		KeyPairId:      out.KeyPairId,
		KeyFingerprint: out.KeyFingerprint,
	}), nil
}

func (s *keyPairService) existing(ctx context.Context, name string) (cloud.KeyPair, error) {
	kp, ok, err := s.Find(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		// deleted between the create and the lookup
		return nil, cloud.NotFound("create", cloud.KindKeyPair, name)
	}
	return kp, nil
}

// Delete removes a key pair. EC2 accepts deletes of unknown names, so the
// key pair is looked up first.
func (s *keyPairService) Delete(ctx context.Context, id string) error {
	_, ok, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return cloud.NotFound("delete", cloud.KindKeyPair, id)
	}

	if _, err := s.p.ec2.DeleteKeyPairWithContext(ctx, &ec2.DeleteKeyPairInput{
		KeyName: aws.String(id),
	}); err != nil {
		return translateError("delete", cloud.KindKeyPair, id, err)
	}
	s.p.log(cloud.KindKeyPair).WithField("key_pair", id).Info("Deleted key pair")
	return nil
}
