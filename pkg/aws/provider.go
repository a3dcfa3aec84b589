package aws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/sirupsen/logrus"
)

// ProviderName identifies this backend in resource refs
const ProviderName = "aws"

// Provider implements cloud.Provider on top of EC2
type Provider struct {
	ec2       ec2iface.EC2API
	session   *session.Session
	awsConfig *aws.Config
	region    string
	logger    logrus.FieldLogger

	imageOwners         []string
	imageCreateAttempts int
	imageCreateInterval time.Duration
	waitInterval        time.Duration
	waitTimeout         time.Duration

	keyPairs       *keyPairService
	securityGroups *securityGroupService
	images         *imageService
	instances      *instanceService
	regions        *regionService
	instanceTypes  *instanceTypeService
	volumes        *volumeService
	snapshots      *snapshotService
	networks       *networkService
	subnets        *subnetService
}

var _ cloud.Provider = (*Provider)(nil)

// Option configures a Provider
type Option func(*Provider)

// WithLogger sets the logger operations are logged to
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithEC2Client replaces the session based client, e.g. with an in-memory fake
func WithEC2Client(client ec2iface.EC2API) Option {
	return func(p *Provider) {
		p.ec2 = client
	}
}

// WithImageOwners restricts image listing to the given owners
func WithImageOwners(owners ...string) Option {
	return func(p *Provider) {
		if len(owners) > 0 {
			p.imageOwners = owners
		}
	}
}

// WithImageCreateRetry bounds the retries of Instance.CreateImage while the
// new instance or image is not yet visible
func WithImageCreateRetry(attempts int, interval time.Duration) Option {
	return func(p *Provider) {
		p.imageCreateAttempts = attempts
		p.imageCreateInterval = interval
	}
}

// WithWaitPolling sets the poll interval and timeout of lifecycle waits
func WithWaitPolling(interval, timeout time.Duration) Option {
	return func(p *Provider) {
		p.waitInterval = interval
		p.waitTimeout = timeout
	}
}

// NewProvider creates a new AWS provider instance
func NewProvider(cfg config.AWSConfig, opts ...Option) (*Provider, error) {
	if cfg.Region == "" {
		return nil, errors.New("region is required")
	}

	p := &Provider{
		region:              cfg.Region,
		logger:              logrus.StandardLogger(),
		imageOwners:         []string{"self"},
		imageCreateAttempts: 3,
		imageCreateInterval: 1 * time.Second,
		waitInterval:        5 * time.Second,
		waitTimeout:         10 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithFields(logrus.Fields{"provider": ProviderName, "region": p.region})

	if p.ec2 == nil {
		if err := p.connect(cfg); err != nil {
			return nil, err
		}
	}

	p.keyPairs = &keyPairService{p: p}
	p.securityGroups = &securityGroupService{p: p}
	p.images = &imageService{p: p}
	p.instances = &instanceService{p: p}
	p.regions = &regionService{p: p}
	p.instanceTypes = &instanceTypeService{p: p}
	p.volumes = &volumeService{p: p}
	p.snapshots = &snapshotService{p: p}
	p.networks = &networkService{p: p}
	p.subnets = &subnetService{p: p}
	return p, nil
}

// connect builds the SDK session and EC2 client
func (p *Provider) connect(cfg config.AWSConfig) error {
	if cfg.AccessKey == "" {
		return errors.New("AWS_ACCESS_KEY_ID environment variable is required")
	}
	if cfg.SecretKey == "" {
		return errors.New("AWS_SECRET_ACCESS_KEY environment variable is required")
	}

	awsConfig := aws.NewConfig().
		WithRegion(cfg.Region).
		WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken))
	if cfg.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(cfg.Endpoint)
	}
	awsConfig = request.WithRetryer(awsConfig, NewRetryer(cfg.MaxRetries))

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %w", err)
	}
	sess.Handlers.Complete.PushBackNamed(metricsHandler)

	if cfg.AssumeRoleARN != "" {
		awsConfig.Credentials = stscreds.NewCredentials(sess, cfg.AssumeRoleARN)
	}

	p.session = sess
	p.awsConfig = awsConfig
	p.ec2 = ec2.New(sess, awsConfig)
	return nil
}

// clientFor returns an EC2 client for another region. An injected client
// serves every region.
func (p *Provider) clientFor(region string) ec2iface.EC2API {
	if p.session == nil || region == p.region {
		return p.ec2
	}
	return ec2.New(p.session, p.awsConfig.Copy().WithRegion(region))
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) Region() string {
	return p.region
}

// ValidateCredentials checks if AWS credentials are valid
func (p *Provider) ValidateCredentials(ctx context.Context) error {
	_, err := p.ec2.DescribeRegionsWithContext(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return fmt.Errorf("invalid AWS credentials: %w", err)
	}
	return nil
}

func (p *Provider) Security() cloud.SecurityService {
	return securityService{p: p}
}

func (p *Provider) BlockStore() cloud.BlockStoreService {
	return blockStoreService{p: p}
}

func (p *Provider) Network() cloud.NetworkingService {
	return networkingService{p: p}
}

func (p *Provider) Images() cloud.ImageService {
	return p.images
}

func (p *Provider) Instances() cloud.InstanceService {
	return p.instances
}

func (p *Provider) InstanceTypes() cloud.InstanceTypeService {
	return p.instanceTypes
}

func (p *Provider) Regions() cloud.RegionService {
	return p.regions
}

type securityService struct {
	p *Provider
}

func (s securityService) KeyPairs() cloud.KeyPairService {
	return s.p.keyPairs
}

func (s securityService) SecurityGroups() cloud.SecurityGroupService {
	return s.p.securityGroups
}

type blockStoreService struct {
	p *Provider
}

func (s blockStoreService) Volumes() cloud.VolumeService {
	return s.p.volumes
}

func (s blockStoreService) Snapshots() cloud.SnapshotService {
	return s.p.snapshots
}

type networkingService struct {
	p *Provider
}

func (s networkingService) Networks() cloud.NetworkService {
	return s.p.networks
}

func (s networkingService) Subnets() cloud.SubnetService {
	return s.p.subnets
}

func (p *Provider) ref(kind cloud.Kind, id string, attrs url.Values) cloud.Ref {
	return cloud.Ref{Provider: ProviderName, Region: p.region, Kind: kind, ID: id, Attrs: attrs}
}

func (p *Provider) log(kind cloud.Kind) *logrus.Entry {
	return p.logger.WithField("kind", kind)
}

func filter(name string, values ...string) *ec2.Filter {
	return &ec2.Filter{Name: aws.String(name), Values: aws.StringSlice(values)}
}

// EC2 filter values treat * and ? as wildcards
var filterEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// literal escapes caller-supplied values so they only match themselves
func literal(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = filterEscaper.Replace(v)
	}
	return out
}

// filterSet turns a models.Filter into EC2 filters on the given id and name
// filter names. Values are matched literally.
func filterSet(idFilter, nameFilter string, ids, names []string) []*ec2.Filter {
	var filters []*ec2.Filter
	if len(ids) > 0 {
		filters = append(filters, filter(idFilter, literal(ids)...))
	}
	if len(names) > 0 {
		filters = append(filters, filter(nameFilter, literal(names)...))
	}
	return filters
}

func tagValue(tags []*ec2.Tag, key string) string {
	for _, tag := range tags {
		if aws.StringValue(tag.Key) == key {
			return aws.StringValue(tag.Value)
		}
	}
	return ""
}
