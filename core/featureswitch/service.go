package featureswitch

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core"
)

var ErrRuleNotFound = errors.New("rule not found")

// Service manages restriction rules and evaluates them into the feature status of a school.
type Service struct {
	repo     RuleRepository
	mailSvc  core.EmailService
	opsEmail string
}

func NewService(repo RuleRepository, mailSvc core.EmailService, opsEmail string) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, opsEmail: opsEmail}
}

// DetailedStatus evaluates every rule for schoolID at the current time.
func (svc *Service) DetailedStatus(ctx context.Context, schoolID string) (DetailedStatus, error) {
	rules, err := svc.repo.QueryRules(ctx, QueryFilter{}, core.DBOrdering{Field: "created_at", Ascending: true})
	if err != nil {
		return DetailedStatus{}, errors.Wrap(err, "querying rules")
	}

	now := nowFunc().UTC()
	ds := DetailedStatus{
		BillingStatus:     []FeatureStatusItem{},
		MaintenanceStatus: []FeatureStatusItem{},
	}
	for _, rule := range rules {
		switch rule.Domain {
		case DomainBilling:
			ds.BillingStatus = append(ds.BillingStatus, rule.Evaluate(schoolID, now))
		case DomainMaintenance:
			ds.MaintenanceStatus = append(ds.MaintenanceStatus, rule.Evaluate(schoolID, now))
		}
	}
	ds.CombinedStatus = Combine(ds.BillingStatus, ds.MaintenanceStatus)
	return ds, nil
}

func (svc *Service) CreateRule(ctx context.Context, nr NewRule) (Rule, error) {
	now := nowFunc().UTC()
	rule := Rule{
		ID:          uuid.New().String(),
		Domain:      nr.Domain,
		FeatureName: nr.FeatureName,
		IsEnabled:   true,
		ScopeType:   ParseScopeType(nr.ScopeType),
		Percentage:  100,
		StartDate:   nr.StartDate,
		EndDate:     nr.EndDate,
		Message:     nr.Message,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nr.IsEnabled != nil {
		rule.IsEnabled = *nr.IsEnabled
	}
	if nr.Percentage != nil {
		rule.Percentage = *nr.Percentage
	}
	if nr.ScopeID != "" {
		scopeID := nr.ScopeID
		rule.ScopeID = &scopeID
	}

	rule, err := svc.repo.CreateRule(ctx, rule)
	if err != nil {
		return Rule{}, errors.Wrap(err, "creating rule")
	}
	if rule.IsEnabled {
		svc.notify(rule, "created")
	}
	return rule, nil
}

func (svc *Service) GetRule(ctx context.Context, id string) (Rule, error) {
	return svc.repo.GetRule(ctx, id)
}

func (svc *Service) QueryRules(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Rule, error) {
	return svc.repo.QueryRules(ctx, filter, core.FilterOrderings(orderings, RuleOrderingFields...)...)
}

func (svc *Service) UpdateRule(ctx context.Context, id string, ur UpdateRule) (Rule, error) {
	rule, err := svc.repo.GetRule(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	if ur.IsEmpty() {
		return rule, nil
	}

	wasEnabled := rule.IsEnabled
	if ur.IsEnabled != nil {
		rule.IsEnabled = *ur.IsEnabled
	}
	if ur.Percentage != nil {
		rule.Percentage = *ur.Percentage
	}
	if ur.Message != nil {
		rule.Message = *ur.Message
	}
	rule.UpdatedAt = nowFunc().UTC()

	rule, err = svc.repo.UpdateRule(ctx, rule)
	if err != nil {
		return Rule{}, errors.Wrap(err, "updating rule")
	}
	if wasEnabled != rule.IsEnabled {
		action := "disabled"
		if rule.IsEnabled {
			action = "enabled"
		}
		svc.notify(rule, action)
	}
	return rule, nil
}

// DeleteRules deletes the given rules; unknown ids are ignored.
func (svc *Service) DeleteRules(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "id", Error: "at least one id is required"})
	}
	return svc.repo.DeleteRules(ctx, ids...)
}

// notify tells ops that a restriction changed. Silently skipped when no ops email is set.
func (svc *Service) notify(rule Rule, action string) {
	if svc.mailSvc == nil || svc.opsEmail == "" {
		return
	}

	var body strings.Builder
	_, _ = fmt.Fprintf(&body, "The %s restriction %q was %s.\n\n", rule.Domain, rule.FeatureName, action)
	_, _ = fmt.Fprintf(&body, "Scope: %s", rule.ScopeType)
	if rule.ScopeID != nil {
		_, _ = fmt.Fprintf(&body, " (%s)", *rule.ScopeID)
	}
	_, _ = fmt.Fprintf(&body, "\nRollout: %d%%\n", rule.Percentage)
	if rule.Message != "" {
		_, _ = fmt.Fprintf(&body, "Message: %s\n", rule.Message)
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: svc.opsEmail}},
		Subject: fmt.Sprintf("[%s] restriction %s: %s", rule.Domain, action, rule.FeatureName),
		Body:    body.String(),
	})
}

// ClientFor returns an in-process Client evaluating the rules of schoolID.
// Used when the feature-status API is served by this very process.
func (svc *Service) ClientFor(schoolID string) Client {
	return ClientFunc(func(ctx context.Context) (DetailedStatus, error) {
		return svc.DetailedStatus(ctx, schoolID)
	})
}
