package models

import (
	"errors"
	"strings"

	"github.com/01000101/cloudbridge/internal/utils"
)

// InstanceState is the backend-independent lifecycle state of an instance
type InstanceState string

const (
	InstanceStateUnknown     InstanceState = "unknown"
	InstanceStatePending     InstanceState = "pending"
	InstanceStateConfiguring InstanceState = "configuring"
	InstanceStateRunning     InstanceState = "running"
	InstanceStateRebooting   InstanceState = "rebooting"
	InstanceStateTerminated  InstanceState = "terminated"
	InstanceStateStopped     InstanceState = "stopped"
	InstanceStateError       InstanceState = "error"
)

// InstanceReadyStates are the states WaitTillReady waits for
var InstanceReadyStates = []InstanceState{InstanceStateRunning}

// InstanceTerminalStates end a wait with an error
var InstanceTerminalStates = []InstanceState{InstanceStateTerminated, InstanceStateError}

// LaunchOptions holds the arguments for creating an instance
type LaunchOptions struct {
	Name         string
	ImageID      string
	InstanceType string
	// Zone is the placement (availability) zone, optional
	Zone        string
	KeyPairName string
	// SecurityGroups accepts group ids (sg-...) or group names
	SecurityGroups []string
	SubnetID       string
	UserData       string
}

// Validate checks the fields that every backend requires
func (o LaunchOptions) Validate() error {
	if o.Name == "" {
		return errors.New("instance name is required")
	}
	if o.ImageID == "" {
		return errors.New("image id is required")
	}
	if err := utils.ValidateInstanceType(o.InstanceType); err != nil {
		return err
	}
	if o.Zone != "" {
		if err := utils.ValidateAvailabilityZone(o.Zone); err != nil {
			return err
		}
	}
	for _, sg := range o.SecurityGroups {
		if strings.TrimSpace(sg) == "" {
			return errors.New("security group reference cannot be empty")
		}
	}
	return nil
}

// PlacementZone is a zone within a region where instances are placed
type PlacementZone struct {
	Name   string `json:"name"`
	Region string `json:"region"`
	State  string `json:"state,omitempty"`
}
