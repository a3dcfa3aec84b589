package models

import (
	"errors"
	"fmt"

	"github.com/01000101/cloudbridge/internal/utils"
)

// VolumeState is the backend-independent lifecycle state of a block volume
type VolumeState string

const (
	VolumeStateUnknown     VolumeState = "unknown"
	VolumeStateCreating    VolumeState = "creating"
	VolumeStateConfiguring VolumeState = "configuring"
	VolumeStateAvailable   VolumeState = "available"
	VolumeStateInUse       VolumeState = "in-use"
	VolumeStateDeleted     VolumeState = "deleted"
	VolumeStateError       VolumeState = "error"
)

// VolumeReadyStates are the states Volume.WaitTillReady waits for
var VolumeReadyStates = []VolumeState{VolumeStateAvailable}

// VolumeTerminalStates end a volume wait with an error
var VolumeTerminalStates = []VolumeState{VolumeStateDeleted, VolumeStateError}

// SnapshotState is the backend-independent lifecycle state of a snapshot
type SnapshotState string

const (
	SnapshotStateUnknown     SnapshotState = "unknown"
	SnapshotStatePending     SnapshotState = "pending"
	SnapshotStateConfiguring SnapshotState = "configuring"
	SnapshotStateAvailable   SnapshotState = "available"
	SnapshotStateError       SnapshotState = "error"
)

// MaxVolumeSize is the largest volume in GiB
const MaxVolumeSize = 16384

// VolumeOptions holds the arguments for creating a block volume
type VolumeOptions struct {
	Name string
	// Size in GiB. May be left at 0 when SnapshotID is set, in which case
	// the volume takes the size of the snapshot.
	Size int64
	Zone string
	// SnapshotID restores the volume from a snapshot, optional
	SnapshotID  string
	Description string
}

// Validate checks the fields that every backend requires
func (o VolumeOptions) Validate() error {
	if err := utils.ValidateResourceName(o.Name); err != nil {
		return err
	}
	if o.Zone == "" {
		return errors.New("placement zone is required")
	}
	if err := utils.ValidateAvailabilityZone(o.Zone); err != nil {
		return err
	}
	switch {
	case o.Size < 0, o.Size > MaxVolumeSize:
		return fmt.Errorf("volume size must be between 1 and %d GiB, got %d", MaxVolumeSize, o.Size)
	case o.Size == 0 && o.SnapshotID == "":
		return errors.New("volume size is required unless restoring a snapshot")
	}
	return nil
}
