package featureswitch

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-admin/core"
)

type memRepo struct {
	mu    sync.Mutex
	rules map[string]Rule
}

func newMemRepo() *memRepo { return &memRepo{rules: make(map[string]Rule)} }

func (repo *memRepo) CreateRule(_ context.Context, rule Rule) (Rule, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.rules[rule.ID] = rule
	return rule, nil
}

func (repo *memRepo) GetRule(_ context.Context, id string) (Rule, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	rule, ok := repo.rules[id]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return rule, nil
}

func (repo *memRepo) QueryRules(_ context.Context, filter QueryFilter, _ ...core.DBOrdering) ([]Rule, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	var rules []Rule
	for _, rule := range repo.rules {
		if filter.Match(rule) {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
	return rules, nil
}

func (repo *memRepo) UpdateRule(_ context.Context, rule Rule) (Rule, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.rules[rule.ID] = rule
	return rule, nil
}

func (repo *memRepo) DeleteRules(_ context.Context, ids ...string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, id := range ids {
		delete(repo.rules, id)
	}
	return nil
}

type mailRecorder struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, messages...)
}

func TestService_CreateRule(t *testing.T) {
	mailSvc := new(mailRecorder)
	svc := NewService(newMemRepo(), mailSvc, "ops@masomo.test")
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, NewRule{Domain: DomainBilling, FeatureName: "admission", ScopeType: "global"})
	if !assert.NoError(t, err) {
		return
	}
	assert.NotEmpty(t, rule.ID)
	assert.True(t, rule.IsEnabled)
	assert.Equal(t, 100, rule.Percentage)
	assert.Equal(t, ScopeGlobal, rule.ScopeType)
	assert.Nil(t, rule.ScopeID)
	if assert.Len(t, mailSvc.messages, 1) {
		msg := mailSvc.messages[0]
		assert.Equal(t, "ops@masomo.test", msg.To[0].Address)
		assert.Equal(t, "[billing] restriction created: admission", msg.Subject)
		assert.Contains(t, msg.Body, "Rollout: 100%")
	}

	disabled, err := svc.CreateRule(ctx, NewRule{
		Domain:      DomainMaintenance,
		FeatureName: "admission",
		IsEnabled:   boolPtr(false),
		ScopeType:   "school",
		ScopeID:     "sch-1",
		Percentage:  intPtr(0),
	})
	if assert.NoError(t, err) {
		assert.False(t, disabled.IsEnabled)
		assert.Equal(t, 0, disabled.Percentage)
		if assert.NotNil(t, disabled.ScopeID) {
			assert.Equal(t, "sch-1", *disabled.ScopeID)
		}
	}
	assert.Len(t, mailSvc.messages, 1) // disabled rules are not announced

	got, err := svc.GetRule(ctx, rule.ID)
	assert.NoError(t, err)
	assert.Equal(t, rule, got)
}

func TestService_UpdateRule(t *testing.T) {
	mailSvc := new(mailRecorder)
	svc := NewService(newMemRepo(), mailSvc, "ops@masomo.test")
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, NewRule{Domain: DomainMaintenance, FeatureName: "admission", ScopeType: "global"})
	if !assert.NoError(t, err) {
		return
	}

	tests := []struct {
		name      string
		id        string
		ur        UpdateRule
		wantErr   error
		wantMails int
		check     func(t *testing.T, rule Rule)
	}{
		{name: "unknown rule", id: "nope", ur: UpdateRule{IsEnabled: boolPtr(false)}, wantErr: ErrRuleNotFound, wantMails: 1},
		{name: "nothing to update", id: rule.ID, wantMails: 1},
		{
			name:      "change message",
			id:        rule.ID,
			ur:        UpdateRule{Message: strPtr("Back at 18:00")},
			wantMails: 1,
			check:     func(t *testing.T, r Rule) { assert.Equal(t, "Back at 18:00", r.Message) },
		},
		{
			name:      "disable",
			id:        rule.ID,
			ur:        UpdateRule{IsEnabled: boolPtr(false), Percentage: intPtr(10)},
			wantMails: 2,
			check: func(t *testing.T, r Rule) {
				assert.False(t, r.IsEnabled)
				assert.Equal(t, 10, r.Percentage)
			},
		},
		{name: "disable again", id: rule.ID, ur: UpdateRule{IsEnabled: boolPtr(false)}, wantMails: 2},
		{
			name:      "enable",
			id:        rule.ID,
			ur:        UpdateRule{IsEnabled: boolPtr(true)},
			wantMails: 3,
			check:     func(t *testing.T, r Rule) { assert.True(t, r.IsEnabled) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.UpdateRule(ctx, tt.id, tt.ur)
			if err != tt.wantErr {
				t.Fatalf("UpdateRule() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Len(t, mailSvc.messages, tt.wantMails)
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}

	last := mailSvc.messages[len(mailSvc.messages)-1]
	assert.Equal(t, "[maintenance] restriction enabled: admission", last.Subject)
}

func TestService_DetailedStatus(t *testing.T) {
	defer func() { nowFunc = time.Now }() // reset

	now := time.Date(2021, 3, 15, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }

	repo := newMemRepo()
	svc := NewService(repo, nil, "")
	ctx := context.Background()

	create := func(nr NewRule) {
		t.Helper()
		if _, err := svc.CreateRule(ctx, nr); err != nil {
			t.Fatalf("CreateRule() failed: %v", err)
		}
	}
	create(NewRule{
		Domain:      DomainMaintenance,
		FeatureName: "admission",
		ScopeType:   "school",
		ScopeID:     "sch-1",
		Message:     "Scheduled maintenance",
	})
	create(NewRule{
		Domain:      DomainBilling,
		FeatureName: "admission",
		ScopeType:   "global",
		EndDate:     timePtr(now.Add(-time.Hour)),
		Message:     "Subscription expired",
	})
	create(NewRule{
		Domain:      DomainBilling,
		FeatureName: "reports",
		IsEnabled:   boolPtr(false),
		ScopeType:   "global",
	})

	t.Run("restricted school", func(t *testing.T) {
		ds, err := svc.DetailedStatus(ctx, "sch-1")
		if !assert.NoError(t, err) {
			return
		}
		assert.Len(t, ds.BillingStatus, 2)
		assert.Len(t, ds.MaintenanceStatus, 1)
		cs := ds.CombinedStatus
		assert.True(t, cs.IsEnabled)
		assert.False(t, cs.BillingBlocked)
		assert.True(t, cs.MaintenanceBlocked)
		assert.Equal(t, "Scheduled maintenance", cs.Message)
		assert.True(t, cs.Valid())
	})

	t.Run("other school", func(t *testing.T) {
		ds, err := svc.DetailedStatus(ctx, "sch-2")
		if !assert.NoError(t, err) {
			return
		}
		assert.False(t, ds.CombinedStatus.IsEnabled)
		assert.Equal(t, MsgFeatureActive, ds.CombinedStatus.Message)
	})

	t.Run("no rules", func(t *testing.T) {
		ds, err := NewService(newMemRepo(), nil, "").DetailedStatus(ctx, "sch-1")
		if assert.NoError(t, err) {
			assert.NotNil(t, ds.BillingStatus)
			assert.NotNil(t, ds.MaintenanceStatus)
			assert.False(t, ds.CombinedStatus.IsEnabled)
		}
	})
}

func TestService_DeleteRules(t *testing.T) {
	svc := NewService(newMemRepo(), nil, "")
	ctx := context.Background()

	r1, _ := svc.CreateRule(ctx, NewRule{Domain: DomainBilling, FeatureName: "a", ScopeType: "global"})
	r2, _ := svc.CreateRule(ctx, NewRule{Domain: DomainBilling, FeatureName: "b", ScopeType: "global"})

	assert.NoError(t, svc.DeleteRules(ctx, r1.ID))
	rules, err := svc.QueryRules(ctx, QueryFilter{})
	if assert.NoError(t, err) && assert.Len(t, rules, 1) {
		assert.Equal(t, r2.ID, rules[0].ID)
	}

	_, err = svc.GetRule(ctx, r1.ID)
	assert.Equal(t, ErrRuleNotFound, err)

	err = svc.DeleteRules(ctx)
	if vErr, ok := err.(*core.ValidationError); assert.True(t, ok, "DeleteRules() error = %v, want *core.ValidationError", err) {
		assert.Equal(t, map[string]string{"id": "at least one id is required"}, vErr.FieldErrors())
		assert.Equal(t, "id: at least one id is required", vErr.Error())
	}
}
