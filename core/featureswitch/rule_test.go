package featureswitch

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-admin/core"
)

func strPtr(s string) *string        { return &s }
func intPtr(i int) *int              { return &i }
func boolPtr(b bool) *bool           { return &b }
func timePtr(t time.Time) *time.Time { return &t }

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

func TestRule_AppliesTo(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{name: "global", rule: Rule{ScopeType: ScopeGlobal}, want: true},
		{name: "matching school", rule: Rule{ScopeType: ScopeSchool, ScopeID: strPtr("sch-1")}, want: true},
		{name: "other school", rule: Rule{ScopeType: ScopeSchool, ScopeID: strPtr("sch-2")}},
		{name: "school without id", rule: Rule{ScopeType: ScopeSchool}},
		{name: "other scope", rule: Rule{ScopeType: ScopeOther, ScopeID: strPtr("sch-1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.AppliesTo("sch-1"))
		})
	}
}

func TestRule_InWindow(t *testing.T) {
	now := time.Date(2021, 3, 15, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name  string
		start *time.Time
		end   *time.Time
		want  bool
	}{
		{name: "open", want: true},
		{name: "started", start: &before, want: true},
		{name: "not started", start: &after},
		{name: "not ended", end: &after, want: true},
		{name: "ended", end: &before},
		{name: "inside", start: &before, end: &after, want: true},
		{name: "on start bound", start: &now, want: true},
		{name: "on end bound", end: &now, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rule{StartDate: tt.start, EndDate: tt.end}
			assert.Equal(t, tt.want, r.InWindow(now))
		})
	}
}

func TestRule_InRollout(t *testing.T) {
	full := Rule{FeatureName: "admission", Percentage: 100}
	none := Rule{FeatureName: "admission", Percentage: 0}
	half := Rule{FeatureName: "admission", Percentage: 50}

	var inHalf int
	for i := 0; i < 1000; i++ {
		school := fmt.Sprintf("sch-%d", i)
		assert.True(t, full.InRollout(school))
		assert.False(t, none.InRollout(school))

		// buckets are stable
		got := half.InRollout(school)
		assert.Equal(t, got, half.InRollout(school))
		if got {
			inHalf++
		}
	}
	assert.True(t, inHalf > 350 && inHalf < 650, "50%% rollout selected %d/1000 schools", inHalf)
}

func TestRule_Evaluate(t *testing.T) {
	now := time.Date(2021, 3, 15, 12, 0, 0, 0, time.UTC)
	rule := Rule{
		FeatureName: "admission",
		IsEnabled:   true,
		ScopeType:   ScopeSchool,
		ScopeID:     strPtr("sch-1"),
		Percentage:  100,
		EndDate:     timePtr(now.Add(time.Hour)),
		Message:     "Scheduled maintenance",
	}

	item := rule.Evaluate("sch-1", now)
	assert.True(t, item.IsEnabled)
	assert.Equal(t, "admission", item.FeatureName)
	assert.Equal(t, ScopeSchool, item.ScopeType)
	assert.Equal(t, "Scheduled maintenance", item.Message)

	assert.False(t, rule.Evaluate("sch-2", now).IsEnabled)
	assert.False(t, rule.Evaluate("sch-1", now.Add(2*time.Hour)).IsEnabled)

	rule.IsEnabled = false
	assert.False(t, rule.Evaluate("sch-1", now).IsEnabled)
}

func TestNewRule_Validate(t *testing.T) {
	validate := newValidator()
	start := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	tests := []struct {
		name       string
		nr         NewRule
		wantFields []string
	}{
		{
			name: "valid global",
			nr:   NewRule{Domain: " Billing ", FeatureName: "Admission", ScopeType: "global"},
		},
		{
			name: "valid school",
			nr: NewRule{
				Domain:      "maintenance",
				FeatureName: "admission",
				ScopeType:   "school",
				ScopeID:     "sch-1",
				Percentage:  intPtr(25),
				StartDate:   &start,
				EndDate:     &end,
			},
		},
		{
			name:       "missing fields",
			nr:         NewRule{},
			wantFields: []string{"domain", "feature_name", "scope_type"},
		},
		{
			name:       "unknown domain and scope",
			nr:         NewRule{Domain: "sales", FeatureName: "admission", ScopeType: "district"},
			wantFields: []string{"domain", "scope_type"},
		},
		{
			name:       "invalid feature name",
			nr:         NewRule{Domain: "billing", FeatureName: "new admission!", ScopeType: "global"},
			wantFields: []string{"feature_name"},
		},
		{
			name:       "school without scope id",
			nr:         NewRule{Domain: "billing", FeatureName: "admission", ScopeType: "school"},
			wantFields: []string{"scope_id"},
		},
		{
			name:       "invalid percentage",
			nr:         NewRule{Domain: "billing", FeatureName: "admission", ScopeType: "global", Percentage: intPtr(101)},
			wantFields: []string{"percentage"},
		},
		{
			name:       "inverted window",
			nr:         NewRule{Domain: "billing", FeatureName: "admission", ScopeType: "global", StartDate: &end, EndDate: &start},
			wantFields: []string{"end_date"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nr.Validate(validate)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			if !assert.True(t, ok, "Validate() error = %v, want validator.ValidationErrors", err) {
				return
			}
			var fields []string
			for _, fe := range vErrs {
				fields = append(fields, fe.Field())
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}

	t.Run("cleans input", func(t *testing.T) {
		nr := NewRule{Domain: " Billing ", FeatureName: " Admission ", ScopeType: "GLOBAL", Message: "  Pay up  "}
		if assert.NoError(t, nr.Validate(validate)) {
			assert.Equal(t, "billing", nr.Domain)
			assert.Equal(t, "admission", nr.FeatureName)
			assert.Equal(t, "global", nr.ScopeType)
			assert.Equal(t, "Pay up", nr.Message)
		}
	})
}

func TestUpdateRule_Validate(t *testing.T) {
	validate := newValidator()

	assert.True(t, UpdateRule{}.IsEmpty())
	assert.False(t, UpdateRule{IsEnabled: boolPtr(false)}.IsEmpty())

	ur := UpdateRule{Percentage: intPtr(-1)}
	assert.Error(t, ur.Validate(validate))

	ur = UpdateRule{Percentage: intPtr(0), Message: strPtr("  Closed  ")}
	if assert.NoError(t, ur.Validate(validate)) {
		assert.Equal(t, "Closed", *ur.Message)
	}
}

func TestQueryFilter_Match(t *testing.T) {
	rule := Rule{Domain: DomainBilling, FeatureName: "admission", IsEnabled: true}

	tests := []struct {
		name   string
		filter QueryFilter
		want   bool
	}{
		{name: "empty", filter: QueryFilter{}, want: true},
		{name: "domain", filter: QueryFilter{Domain: "billing"}, want: true},
		{name: "other domain", filter: QueryFilter{Domain: "maintenance"}},
		{name: "feature", filter: QueryFilter{FeatureName: "admission"}, want: true},
		{name: "other feature", filter: QueryFilter{FeatureName: "reports"}},
		{name: "enabled", filter: QueryFilter{IsEnabled: boolPtr(true)}, want: true},
		{name: "disabled", filter: QueryFilter{IsEnabled: boolPtr(false)}},
		{name: "all", filter: QueryFilter{Domain: "billing", FeatureName: "admission", IsEnabled: boolPtr(true)}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(rule))
		})
	}
}
