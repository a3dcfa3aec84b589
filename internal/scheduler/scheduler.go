package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"
	"github.com/01000101/cloudbridge/pkg/storage"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is how often the ledger is reconciled
const DefaultInterval = 30 * time.Second

// cleanupOrder deletes dependents before the resources they reference
var cleanupOrder = []cloud.Kind{
	cloud.KindInstance,
	cloud.KindImage,
	cloud.KindSnapshot,
	cloud.KindVolume,
	cloud.KindSecurityGroup,
	cloud.KindSubnet,
	cloud.KindNetwork,
	cloud.KindKeyPair,
}

// Scheduler keeps the resource ledger in step with the provider: records of
// resources that no longer exist are dropped on every tick. Only records
// whose ref names the provider and region of the scheduler are looked at.
type Scheduler struct {
	provider cloud.Provider
	storage  *storage.FileStorage
	interval time.Duration
	logger   *logrus.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a new scheduler instance
func NewScheduler(provider cloud.Provider, storage *storage.FileStorage, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		provider: provider,
		storage:  storage,
		interval: DefaultInterval,
		logger:   logger,
	}
}

// SetInterval changes the reconcile interval; call before Start
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start begins the background reconcile loop
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.logger.WithField("interval", s.interval).Info("Starting ledger scheduler")
	go s.run(ctx)
}

// Stop stops the loop and waits for it to exit
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.logger.Info("Stopping ledger scheduler")
	s.cancel()
	<-s.done
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Warn("Ledger reconcile failed")
			}
		}
	}
}

// Reconcile drops ledger records whose resource is gone and returns how
// many were dropped
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	records, err := s.storage.List("")
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, rec := range records {
		logger := s.logger.WithFields(logrus.Fields{"kind": rec.Kind, "id": rec.ID})
		if !s.owns(rec, logger) {
			continue
		}
		exists, err := s.exists(ctx, rec)
		if err != nil {
			logger.WithError(err).Debug("Failed to look up resource")
			errs = append(errs, err)
			continue
		}
		if exists {
			continue
		}
		if err := s.storage.Delete(rec.Ref); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Info("Resource no longer exists, removed from ledger")
		removed++
	}
	return removed, errors.Join(errs...)
}

// Cleanup deletes every resource in the ledger, instances first, and
// removes the records of deleted resources. Failures do not stop the sweep.
func (s *Scheduler) Cleanup(ctx context.Context) (int, error) {
	deleted := 0
	var errs []error
	for _, kind := range cleanupOrder {
		records, err := s.storage.List(kind)
		if err != nil {
			return deleted, err
		}
		for _, rec := range records {
			logger := s.logger.WithFields(logrus.Fields{"kind": rec.Kind, "id": rec.ID})
			if !s.owns(rec, logger) {
				continue
			}
			err := s.delete(ctx, rec)
			if err != nil && !cloud.IsNotFound(err) {
				logger.WithError(err).Error("Failed to delete resource")
				errs = append(errs, fmt.Errorf("delete %s %s: %w", rec.Kind, rec.ID, err))
				continue
			}
			if err := s.storage.Delete(rec.Ref); err != nil {
				errs = append(errs, err)
				continue
			}
			logger.Info("Deleted resource")
			deleted++
		}
	}
	return deleted, errors.Join(errs...)
}

// owns reports whether the record belongs to the provider and region the
// scheduler talks to. A lookup anywhere else would find nothing.
func (s *Scheduler) owns(rec *models.ResourceRecord, logger *logrus.Entry) bool {
	ref, err := cloud.ParseRef(rec.Ref)
	if err != nil {
		logger.WithError(err).Warn("Skipping ledger record with an invalid ref")
		return false
	}
	if ref.Provider != s.provider.Name() || ref.Region != s.provider.Region() {
		logger.WithFields(logrus.Fields{
			"provider": ref.Provider,
			"region":   ref.Region,
		}).Debug("Skipping ledger record of another region")
		return false
	}
	return true
}

type getter[T cloud.Resource] interface {
	Get(ctx context.Context, filter models.Filter) ([]T, error)
}

func present[T cloud.Resource](ctx context.Context, svc getter[T], id string) (bool, error) {
	found, err := svc.Get(ctx, models.Filter{IDs: []string{id}})
	if cloud.IsNotFound(err) {
		return false, nil
	}
	return len(found) > 0, err
}

func (s *Scheduler) exists(ctx context.Context, rec *models.ResourceRecord) (bool, error) {
	switch cloud.Kind(rec.Kind) {
	case cloud.KindKeyPair:
		return present(ctx, s.provider.Security().KeyPairs(), rec.ID)
	case cloud.KindSecurityGroup:
		return present(ctx, s.provider.Security().SecurityGroups(), rec.ID)
	case cloud.KindImage:
		return present(ctx, s.provider.Images(), rec.ID)
	case cloud.KindInstance:
		return present(ctx, s.provider.Instances(), rec.ID)
	case cloud.KindVolume:
		return present(ctx, s.provider.BlockStore().Volumes(), rec.ID)
	case cloud.KindSnapshot:
		return present(ctx, s.provider.BlockStore().Snapshots(), rec.ID)
	case cloud.KindNetwork:
		return present(ctx, s.provider.Network().Networks(), rec.ID)
	case cloud.KindSubnet:
		return present(ctx, s.provider.Network().Subnets(), rec.ID)
	}
	// kinds the ledger does not track stay untouched
	return true, nil
}

func (s *Scheduler) delete(ctx context.Context, rec *models.ResourceRecord) error {
	switch cloud.Kind(rec.Kind) {
	case cloud.KindKeyPair:
		return s.provider.Security().KeyPairs().Delete(ctx, rec.ID)
	case cloud.KindSecurityGroup:
		return s.provider.Security().SecurityGroups().Delete(ctx, rec.ID)
	case cloud.KindImage:
		return s.provider.Images().Delete(ctx, rec.ID)
	case cloud.KindInstance:
		return s.terminate(ctx, rec.ID)
	case cloud.KindVolume:
		return s.provider.BlockStore().Volumes().Delete(ctx, rec.ID)
	case cloud.KindSnapshot:
		return s.provider.BlockStore().Snapshots().Delete(ctx, rec.ID)
	case cloud.KindNetwork:
		return s.provider.Network().Networks().Delete(ctx, rec.ID)
	case cloud.KindSubnet:
		return s.provider.Network().Subnets().Delete(ctx, rec.ID)
	}
	return fmt.Errorf("cannot delete resources of kind %q", rec.Kind)
}

// terminate waits for the instance to go away so that its security groups
// can be deleted afterwards
func (s *Scheduler) terminate(ctx context.Context, id string) error {
	found, err := s.provider.Instances().Get(ctx, models.Filter{IDs: []string{id}})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return cloud.NotFound("cleanup", cloud.KindInstance, id)
	}
	inst := found[0]
	if err := inst.Terminate(ctx); err != nil {
		return err
	}
	return inst.WaitFor(ctx, []models.InstanceState{models.InstanceStateTerminated}, []models.InstanceState{models.InstanceStateError})
}
