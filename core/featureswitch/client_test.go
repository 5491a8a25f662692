package featureswitch

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

const combinedJSON = `{
	"is_enabled": true,
	"billing_blocked": false,
	"maintenance_blocked": true,
	"billing_status": {"is_enabled": false, "message": "Feature is active"},
	"maintenance_status": {"is_enabled": true, "message": "Scheduled maintenance"},
	"message": "Scheduled maintenance"
}`

func TestDecodeDetailedStatus(t *testing.T) {
	statusJSON := `{
		"billing_status": [],
		"maintenance_status": [{"feature_name": "admission", "is_enabled": true, "scope_type": "global", "percentage": 100, "message": "Scheduled maintenance"}],
		"combined_status": ` + combinedJSON + `
	}`

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "data envelope", body: `{"data": ` + statusJSON + `}`},
		{name: "detailed_status envelope", body: `{"detailed_status": ` + statusJSON + `}`},
		{name: "data wins over detailed_status", body: `{"data": ` + statusJSON + `, "detailed_status": null}`},
		{name: "missing lists", body: `{"data": {"combined_status": ` + combinedJSON + `}}`},
		{name: "not json", body: `<html>bad gateway</html>`, wantErr: true},
		{name: "bare status", body: statusJSON, wantErr: true},
		{name: "empty object", body: `{}`, wantErr: true},
		{name: "null data", body: `{"data": null}`, wantErr: true},
		{name: "string data", body: `{"data": "ok"}`, wantErr: true},
		{name: "missing combined_status", body: `{"data": {"billing_status": []}}`, wantErr: true},
		{name: "invalid combined_status", body: `{"data": {"combined_status": []}}`, wantErr: true},
		{name: "json array", body: `[]`, wantErr: true},
		{
			name:    "inconsistent combined_status",
			body:    `{"data": {"combined_status": {"is_enabled": true, "billing_blocked": false, "maintenance_blocked": false, "message": "x"}}}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := DecodeDetailedStatus([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, ErrUnexpectedResponseShape, errors.Cause(err))
				return
			}
			if assert.NoError(t, err) {
				assert.NotNil(t, ds.BillingStatus)
				assert.NotNil(t, ds.MaintenanceStatus)
				assert.True(t, ds.CombinedStatus.IsEnabled)
				assert.True(t, ds.CombinedStatus.MaintenanceBlocked)
				assert.False(t, ds.CombinedStatus.BillingBlocked)
				assert.Equal(t, "Scheduled maintenance", ds.CombinedStatus.Message)
			}
		})
	}
}

func TestDecodeDetailedStatus_scopeType(t *testing.T) {
	body := `{"data": {
		"billing_status": [
			{"feature_name": "a", "scope_type": "global"},
			{"feature_name": "b", "scope_type": "school", "scope_id": "sch-1"},
			{"feature_name": "c", "scope_type": "district"}
		],
		"combined_status": ` + combinedJSON + `
	}}`

	ds, err := DecodeDetailedStatus([]byte(body))
	if assert.NoError(t, err) && assert.Len(t, ds.BillingStatus, 3) {
		assert.Equal(t, ScopeGlobal, ds.BillingStatus[0].ScopeType)
		assert.Equal(t, ScopeSchool, ds.BillingStatus[1].ScopeType)
		if assert.NotNil(t, ds.BillingStatus[1].ScopeID) {
			assert.Equal(t, "sch-1", *ds.BillingStatus[1].ScopeID)
		}
		assert.Equal(t, ScopeOther, ds.BillingStatus[2].ScopeType)
	}
}

func TestFetchError(t *testing.T) {
	err := NewFetchError(502, ErrUnexpectedResponseShape)
	assert.Equal(t, "fetching feature status (HTTP 502): unexpected feature status response shape", err.Error())
	assert.Equal(t, ErrUnexpectedResponseShape, errors.Cause(err))
	assert.True(t, errors.Is(err, ErrUnexpectedResponseShape))

	err = NewFetchError(0, errors.New("connection refused"))
	assert.Equal(t, "fetching feature status: connection refused", err.Error())
}
