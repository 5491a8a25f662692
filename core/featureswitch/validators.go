package featureswitch

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-admin/core"
)

var (
	domainTag  = "gatedomain"
	domainText = "must be one of: billing, maintenance"

	scopeTypeTag  = "scopetype"
	scopeTypeText = "must be one of: global, school, other"

	scopeIDTag  = "scopeid"
	scopeIDText = "scope_id is required for school scoped rules"

	dateRangeTag  = "daterange"
	dateRangeText = "end_date must be after start_date"
)

// InitValidators registers the rule validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(domainTag, domainValidation)
	core.RegisterCustomTranslation(validate, translator, domainTag, domainText)

	_ = validate.RegisterValidation(scopeTypeTag, scopeTypeValidation)
	core.RegisterCustomTranslation(validate, translator, scopeTypeTag, scopeTypeText)

	validate.RegisterStructValidation(newRuleStructValidation, NewRule{})
	core.RegisterCustomTranslation(validate, translator, scopeIDTag, scopeIDText)
	core.RegisterCustomTranslation(validate, translator, dateRangeTag, dateRangeText)
}

// Custom Validators

func domainValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, d := range Domains {
		if val == d {
			return true
		}
	}
	return false
}

// scopeTypeValidation is strict: unlike decoding, unknown scope types are rejected.
func scopeTypeValidation(fl validator.FieldLevel) bool {
	val := ScopeType(fl.Field().String())
	for _, st := range ScopeTypes {
		if val == st {
			return true
		}
	}
	return false
}

// newRuleStructValidation does NewRule's struct level validation
func newRuleStructValidation(sl validator.StructLevel) {
	nr, ok := sl.Current().Interface().(NewRule)
	if !ok {
		return
	}
	if ScopeType(nr.ScopeType) == ScopeSchool && nr.ScopeID == "" {
		sl.ReportError(nr.ScopeID, "scope_id", "ScopeID", scopeIDTag, "")
	}
	if nr.StartDate != nil && nr.EndDate != nil && !nr.EndDate.After(*nr.StartDate) {
		sl.ReportError(nr.EndDate, "end_date", "EndDate", dateRangeTag, "")
	}
}
