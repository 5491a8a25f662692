package featureswitch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnexpectedResponseShape is returned when the feature-status API answers with a body
// that is neither {"data": DetailedStatus} nor {"detailed_status": DetailedStatus}.
var ErrUnexpectedResponseShape = errors.New("unexpected feature status response shape")

// Client fetches the current tenant's feature-restriction status.
// The acting tenant/user is carried by the client itself (session credentials).
type Client interface {
	FetchDetailedStatus(ctx context.Context) (DetailedStatus, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context) (DetailedStatus, error)

func (f ClientFunc) FetchDetailedStatus(ctx context.Context) (DetailedStatus, error) {
	return f(ctx)
}

// FetchError is returned by clients for transport failures, non-2xx answers and
// response shape violations. Cause holds the original error.
type FetchError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func NewFetchError(statusCode int, err error) *FetchError {
	return &FetchError{StatusCode: statusCode, Err: err}
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching feature status (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching feature status: %v", e.Err)
}

func (e *FetchError) Cause() error  { return e.Err }
func (e *FetchError) Unwrap() error { return e.Err }

// DecodeDetailedStatus unwraps one of the two accepted response shapes.
func DecodeDetailedStatus(body []byte) (DetailedStatus, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return DetailedStatus{}, errors.Wrap(ErrUnexpectedResponseShape, err.Error())
	}

	for _, key := range []string{"data", "detailed_status"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		return decodeStatusObject(raw, key)
	}
	return DetailedStatus{}, errors.Wrap(ErrUnexpectedResponseShape, "missing data or detailed_status")
}

func decodeStatusObject(raw json.RawMessage, key string) (DetailedStatus, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return DetailedStatus{}, errors.Wrapf(ErrUnexpectedResponseShape, "%s is not an object", key)
	}
	if _, ok := fields["combined_status"]; !ok {
		return DetailedStatus{}, errors.Wrapf(ErrUnexpectedResponseShape, "%s has no combined_status", key)
	}

	var ds DetailedStatus
	if err := json.Unmarshal(raw, &ds); err != nil {
		return DetailedStatus{}, errors.Wrap(ErrUnexpectedResponseShape, err.Error())
	}
	if !ds.CombinedStatus.Valid() {
		return DetailedStatus{}, errors.Wrap(ErrUnexpectedResponseShape, "combined_status is inconsistent")
	}
	if ds.BillingStatus == nil {
		ds.BillingStatus = []FeatureStatusItem{}
	}
	if ds.MaintenanceStatus == nil {
		ds.MaintenanceStatus = []FeatureStatusItem{}
	}
	return ds, nil
}
