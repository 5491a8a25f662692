package featureswitch

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-admin/core"
)

// Rule is a stored restriction rule of the billing or maintenance domain.
type Rule struct {
	ID          string     `json:"id"`
	Domain      string     `json:"domain"`
	FeatureName string     `json:"feature_name"`
	IsEnabled   bool       `json:"is_enabled"`
	ScopeType   ScopeType  `json:"scope_type"`
	ScopeID     *string    `json:"scope_id,omitempty"`
	Percentage  int        `json:"percentage"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

// AppliesTo reports whether the rule targets schoolID. Scopes other than global and
// school never apply.
func (r Rule) AppliesTo(schoolID string) bool {
	switch r.ScopeType {
	case ScopeGlobal:
		return true
	case ScopeSchool:
		return r.ScopeID != nil && *r.ScopeID == schoolID
	default:
		return false
	}
}

// InWindow reports whether t is inside [StartDate, EndDate]. Missing bounds are open.
func (r Rule) InWindow(t time.Time) bool {
	if r.StartDate != nil && t.Before(*r.StartDate) {
		return false
	}
	if r.EndDate != nil && t.After(*r.EndDate) {
		return false
	}
	return true
}

// InRollout reports whether schoolID falls into the rule's rollout percentage.
// Buckets are stable per (feature, school).
func (r Rule) InRollout(schoolID string) bool {
	switch {
	case r.Percentage >= 100:
		return true
	case r.Percentage <= 0:
		return false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(r.FeatureName + ":" + schoolID))
	return int(h.Sum32()%100) < r.Percentage
}

// Evaluate turns the rule into the item sent to schoolID's dashboard.
// The item's IsEnabled is true only when the restriction is active for that school at t.
func (r Rule) Evaluate(schoolID string, t time.Time) FeatureStatusItem {
	return FeatureStatusItem{
		FeatureName: r.FeatureName,
		IsEnabled:   r.IsEnabled && r.AppliesTo(schoolID) && r.InWindow(t) && r.InRollout(schoolID),
		ScopeType:   r.ScopeType,
		ScopeID:     r.ScopeID,
		Percentage:  r.Percentage,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Message:     r.Message,
	}
}

// NewRule contains information needed to create a new Rule.
type NewRule struct {
	Domain      string     `json:"domain" validate:"required,gatedomain"`
	FeatureName string     `json:"feature_name" validate:"required,max=64,slug"`
	IsEnabled   *bool      `json:"is_enabled"`
	ScopeType   string     `json:"scope_type" validate:"required,scopetype"`
	ScopeID     string     `json:"scope_id" validate:"omitempty,max=64"`
	Percentage  *int       `json:"percentage" validate:"omitempty,min=0,max=100"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Message     string     `json:"message" validate:"max=255"`
}

func (nr *NewRule) Validate(validate *validator.Validate) error {
	nr.Domain = core.CleanString(nr.Domain, true /* lower */)
	nr.FeatureName = core.CleanString(nr.FeatureName, true /* lower */)
	nr.ScopeType = core.CleanString(nr.ScopeType, true /* lower */)
	nr.ScopeID = core.CleanString(nr.ScopeID)
	nr.Message = core.CleanString(nr.Message)
	return validate.Struct(nr)
}

// UpdateRule defines what may be changed on an existing Rule.
type UpdateRule struct {
	IsEnabled  *bool   `json:"is_enabled"`
	Percentage *int    `json:"percentage" validate:"omitempty,min=0,max=100"`
	Message    *string `json:"message" validate:"omitempty,max=255"`
}

func (ur *UpdateRule) Validate(validate *validator.Validate) error {
	if ur.Message != nil {
		msg := core.CleanString(*ur.Message)
		ur.Message = &msg
	}
	return validate.Struct(ur)
}

func (ur UpdateRule) IsEmpty() bool {
	return ur.IsEnabled == nil && ur.Percentage == nil && ur.Message == nil
}

type QueryFilter struct {
	Domain      string `query:"domain"`
	FeatureName string `query:"feature_name"`
	IsEnabled   *bool  `query:"is_enabled"`
}

func (qf *QueryFilter) Clean() {
	qf.Domain = core.CleanString(qf.Domain, true /* lower */)
	qf.FeatureName = core.CleanString(qf.FeatureName, true /* lower */)
}

// Match reports whether rule satisfies every set field of the filter.
func (qf QueryFilter) Match(rule Rule) bool {
	if qf.Domain != "" && rule.Domain != qf.Domain {
		return false
	}
	if qf.FeatureName != "" && rule.FeatureName != qf.FeatureName {
		return false
	}
	if qf.IsEnabled != nil && rule.IsEnabled != *qf.IsEnabled {
		return false
	}
	return true
}

// RuleOrderingFields are the fields rules may be ordered by.
var RuleOrderingFields = []string{"domain", "feature_name", "is_enabled", "percentage", "created_at", "updated_at"}

type RuleRepository interface {
	CreateRule(ctx context.Context, rule Rule) (Rule, error)
	GetRule(ctx context.Context, id string) (Rule, error)
	// QueryRules applies AND operation on available QueryFilter fields.
	QueryRules(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Rule, error)
	UpdateRule(ctx context.Context, rule Rule) (Rule, error)
	DeleteRules(ctx context.Context, ids ...string) error
}
