package featureswitch

import (
	"encoding/json"
	"strings"
	"time"
)

// Domains
const (
	DomainBilling     = "billing"
	DomainMaintenance = "maintenance"
)

var Domains = []string{DomainBilling, DomainMaintenance}

// Messages
const (
	MsgFeatureActive     = "Feature is active"
	MsgStatusUnavailable = "Unable to determine feature status"
	MsgRootBypass        = "Root users bypass feature restrictions"
)

// ScopeType is the granularity at which a restriction applies.
type ScopeType string

const (
	ScopeGlobal ScopeType = "global"
	ScopeSchool ScopeType = "school"
	ScopeOther  ScopeType = "other"
)

var ScopeTypes = []ScopeType{ScopeGlobal, ScopeSchool, ScopeOther}

// ParseScopeType maps unknown values to ScopeOther.
func ParseScopeType(s string) ScopeType {
	switch st := ScopeType(strings.ToLower(strings.TrimSpace(s))); st {
	case ScopeGlobal, ScopeSchool:
		return st
	default:
		return ScopeOther
	}
}

func (st *ScopeType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*st = ParseScopeType(s)
	return nil
}

// FeatureStatusItem is one restriction rule evaluation, as sent by the feature-status API.
// IsEnabled == true means the restriction is active.
type FeatureStatusItem struct {
	FeatureName string     `json:"feature_name"`
	IsEnabled   bool       `json:"is_enabled"`
	ScopeType   ScopeType  `json:"scope_type"`
	ScopeID     *string    `json:"scope_id,omitempty"`
	Percentage  int        `json:"percentage"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Message     string     `json:"message"`
}

type DomainStatus struct {
	IsEnabled bool   `json:"is_enabled"`
	Message   string `json:"message"`
}

// CombinedStatus aggregates the billing and maintenance domains.
// IsEnabled is the overall blocked flag.
type CombinedStatus struct {
	IsEnabled          bool         `json:"is_enabled"`
	BillingBlocked     bool         `json:"billing_blocked"`
	MaintenanceBlocked bool         `json:"maintenance_blocked"`
	BillingStatus      DomainStatus `json:"billing_status"`
	MaintenanceStatus  DomainStatus `json:"maintenance_status"`
	Message            string       `json:"message"`
}

// Valid reports whether the overall flag agrees with the domain flags.
func (cs CombinedStatus) Valid() bool {
	return cs.IsEnabled == (cs.BillingBlocked || cs.MaintenanceBlocked)
}

type DetailedStatus struct {
	BillingStatus     []FeatureStatusItem `json:"billing_status"`
	MaintenanceStatus []FeatureStatusItem `json:"maintenance_status"`
	CombinedStatus    CombinedStatus      `json:"combined_status"`
}

// GateResolution is what the dashboard consumes to gate admission actions.
type GateResolution struct {
	IsBlocked          bool   `json:"isBlocked"`
	BillingBlocked     bool   `json:"billingBlocked"`
	MaintenanceBlocked bool   `json:"maintenanceBlocked"`
	BlockMessage       string `json:"blockMessage"`
}

func resolutionOf(ds DetailedStatus, bypassed bool) GateResolution {
	cs := ds.CombinedStatus
	if bypassed {
		return GateResolution{BlockMessage: cs.Message}
	}
	return GateResolution{
		IsBlocked:          cs.IsEnabled,
		BillingBlocked:     cs.BillingBlocked,
		MaintenanceBlocked: cs.MaintenanceBlocked,
		BlockMessage:       cs.Message,
	}
}
