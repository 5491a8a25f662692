package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
)

type ruleRepository struct {
	db *ruleTable
}

func NewRuleRepository(db *DB) featureswitch.RuleRepository {
	return &ruleRepository{db: db.rule}
}

func (repo *ruleRepository) CreateRule(_ context.Context, rule featureswitch.Rule) (featureswitch.Rule, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[rule.ID] = &rule
	return rule, nil
}

func (repo *ruleRepository) GetRule(_ context.Context, id string) (featureswitch.Rule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rule, ok := repo.db.table[id]; ok {
		return *rule, nil
	}
	return featureswitch.Rule{}, featureswitch.ErrRuleNotFound
}

func (repo *ruleRepository) QueryRules(
	_ context.Context,
	filter featureswitch.QueryFilter,
	orderings ...core.DBOrdering,
) ([]featureswitch.Rule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rules := make([]featureswitch.Rule, 0, len(repo.db.table))
	for _, rule := range repo.db.table {
		if filter.Match(*rule) {
			rules = append(rules, *rule)
		}
	}

	orderings = append(append([]core.DBOrdering{}, orderings...), core.DBOrdering{Field: "created_at", Ascending: true})
	sort.SliceStable(rules, func(i, j int) bool {
		for _, ord := range orderings {
			if c := compareRules(rules[i], rules[j], ord.Field); c != 0 {
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

// compareRules compares a and b on field; unknown fields compare equal.
func compareRules(a, b featureswitch.Rule, field string) int {
	switch field {
	case "domain":
		return strings.Compare(a.Domain, b.Domain)
	case "feature_name":
		return strings.Compare(a.FeatureName, b.FeatureName)
	case "is_enabled":
		return compareBools(a.IsEnabled, b.IsEnabled)
	case "percentage":
		return a.Percentage - b.Percentage
	case "created_at":
		return compareTimes(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "updated_at":
		return compareTimes(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	default:
		return 0
	}
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (repo *ruleRepository) UpdateRule(_ context.Context, rule featureswitch.Rule) (featureswitch.Rule, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[rule.ID]
	if !ok {
		return featureswitch.Rule{}, featureswitch.ErrRuleNotFound
	}
	// only mutable fields are saved
	orig.IsEnabled = rule.IsEnabled
	orig.Percentage = rule.Percentage
	orig.Message = rule.Message
	orig.UpdatedAt = rule.UpdatedAt
	return *orig, nil
}

func (repo *ruleRepository) DeleteRules(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
