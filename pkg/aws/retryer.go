package aws

import (
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/request"
)

// Retryer retries interrupted response bodies on top of the SDK's default
// throttling and 5xx handling.
type Retryer struct {
	client.DefaultRetryer
}

// NewRetryer returns a Retryer allowing maxRetries retries. Zero disables
// retries and a negative value keeps the SDK default.
func NewRetryer(maxRetries int) Retryer {
	if maxRetries < 0 {
		maxRetries = client.DefaultRetryerMaxNumRetries
	}
	return Retryer{DefaultRetryer: client.DefaultRetryer{NumMaxRetries: maxRetries}}
}

// ShouldRetry retries a SerializationError before deferring to the
// DefaultRetryer
func (r Retryer) ShouldRetry(req *request.Request) bool {
	if req.Error != nil && errorCode(req.Error) == request.ErrCodeSerialization {
		return true
	}
	return r.DefaultRetryer.ShouldRetry(req)
}
