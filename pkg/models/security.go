package models

import (
	"errors"
	"fmt"

	"github.com/01000101/cloudbridge/internal/utils"
)

// RuleSpec describes an ingress rule to add to a security group. Exactly one
// of CIDR and SourceGroupID must be set.
type RuleSpec struct {
	Protocol      string
	FromPort      int64
	ToPort        int64
	CIDR          string
	SourceGroupID string
}

// Normalize fills in defaults: a group rule without a protocol allows all traffic.
func (s RuleSpec) Normalize() RuleSpec {
	if s.Protocol == "" && s.SourceGroupID != "" {
		s.Protocol = "-1"
	}
	s.Protocol = utils.NormalizeProtocol(s.Protocol)
	if s.Protocol == "-1" {
		s.FromPort, s.ToPort = -1, -1
	}
	return s
}

// Validate checks the spec after normalization
func (s RuleSpec) Validate() error {
	s = s.Normalize()
	switch {
	case s.CIDR == "" && s.SourceGroupID == "":
		return errors.New("rule needs either a CIDR block or a source group")
	case s.CIDR != "" && s.SourceGroupID != "":
		return errors.New("rule cannot have both a CIDR block and a source group")
	}
	if s.Protocol == "" {
		return errors.New("rule protocol is required")
	}
	if err := utils.ValidateProtocol(s.Protocol); err != nil {
		return err
	}
	if err := utils.ValidatePortRange(s.Protocol, s.FromPort, s.ToPort); err != nil {
		return err
	}
	if s.CIDR != "" {
		return utils.ValidateCIDR(s.CIDR)
	}
	return nil
}

func (s RuleSpec) String() string {
	s = s.Normalize()
	source := s.CIDR
	if source == "" {
		source = s.SourceGroupID
	}
	return fmt.Sprintf("%s %d-%d from %s", s.Protocol, s.FromPort, s.ToPort, source)
}
