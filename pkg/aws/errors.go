package aws

import (
	"errors"
	"strings"

	"github.com/01000101/cloudbridge/pkg/cloud"

	"github.com/aws/aws-sdk-go/aws/awserr"
)

// errorCode returns the EC2 error code of err, or "" for other errors
func errorCode(err error) string {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code()
	}
	return ""
}

func isNotFoundCode(code string) bool {
	switch {
	case strings.HasSuffix(code, ".NotFound"):
		return true
	case code == "InvalidAMIID.Unavailable":
		return true
	}
	return false
}

// translateError maps unambiguous EC2 error codes to the cloud sentinels and
// wraps everything else as a transport error.
func translateError(op string, kind cloud.Kind, id string, err error) error {
	if err == nil {
		return nil
	}
	code := errorCode(err)
	switch {
	case isNotFoundCode(code):
		return cloud.NotFound(op, kind, id)
	case strings.HasSuffix(code, ".Duplicate"):
		return cloud.Duplicate(op, kind, id)
	}
	return &cloud.TransportError{Op: op, Err: err}
}
