package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
)

const ruleColumns = `id, domain, feature_name, is_enabled, scope_type, scope_id, percentage,
	start_date, end_date, message, created_at, updated_at`

type ruleRow struct {
	ID          string      `db:"id"`
	Domain      string      `db:"domain"`
	FeatureName string      `db:"feature_name"`
	IsEnabled   bool        `db:"is_enabled"`
	ScopeType   string      `db:"scope_type"`
	ScopeID     null.String `db:"scope_id"`
	Percentage  int         `db:"percentage"`
	StartDate   null.Time   `db:"start_date"`
	EndDate     null.Time   `db:"end_date"`
	Message     string      `db:"message"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
}

func toRow(rule featureswitch.Rule) ruleRow {
	row := ruleRow{
		ID:          rule.ID,
		Domain:      rule.Domain,
		FeatureName: rule.FeatureName,
		IsEnabled:   rule.IsEnabled,
		ScopeType:   string(rule.ScopeType),
		ScopeID:     null.StringFromPtr(rule.ScopeID),
		Percentage:  rule.Percentage,
		Message:     rule.Message,
		CreatedAt:   null.NewTime(rule.CreatedAt.UTC(), !rule.CreatedAt.IsZero()),
		UpdatedAt:   null.NewTime(rule.UpdatedAt.UTC(), !rule.UpdatedAt.IsZero()),
	}
	if rule.StartDate != nil {
		row.StartDate = null.TimeFrom(rule.StartDate.UTC())
	}
	if rule.EndDate != nil {
		row.EndDate = null.TimeFrom(rule.EndDate.UTC())
	}
	return row
}

func (row ruleRow) toRule() featureswitch.Rule {
	return featureswitch.Rule{
		ID:          row.ID,
		Domain:      row.Domain,
		FeatureName: row.FeatureName,
		IsEnabled:   row.IsEnabled,
		ScopeType:   featureswitch.ParseScopeType(row.ScopeType),
		ScopeID:     row.ScopeID.Ptr(),
		Percentage:  row.Percentage,
		StartDate:   utcPtr(row.StartDate),
		EndDate:     utcPtr(row.EndDate),
		Message:     row.Message,
		CreatedAt:   row.CreatedAt.Time.UTC(),
		UpdatedAt:   row.UpdatedAt.Time.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type ruleRepository struct {
	db *sqlx.DB
}

func NewRuleRepository(db *sqlx.DB) featureswitch.RuleRepository {
	return &ruleRepository{db: db}
}

func (repo *ruleRepository) CreateRule(ctx context.Context, rule featureswitch.Rule) (featureswitch.Rule, error) {
	q := `INSERT INTO feature_rule (` + ruleColumns + `)
		VALUES (:id, :domain, :feature_name, :is_enabled, :scope_type, :scope_id, :percentage,
			:start_date, :end_date, :message, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toRow(rule)); err != nil {
		return featureswitch.Rule{}, errors.Wrap(err, "inserting rule")
	}
	return rule, nil
}

func (repo *ruleRepository) GetRule(ctx context.Context, id string) (featureswitch.Rule, error) {
	if _, err := uuid.Parse(id); err != nil { // ids are UUIDs: postgres rejects anything else
		return featureswitch.Rule{}, featureswitch.ErrRuleNotFound
	}
	var row ruleRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+ruleColumns+` FROM feature_rule WHERE id = $1`, id)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return featureswitch.Rule{}, featureswitch.ErrRuleNotFound
		}
		return featureswitch.Rule{}, errors.Wrap(err, "selecting rule")
	}
	return row.toRule(), nil
}

func (repo *ruleRepository) QueryRules(
	ctx context.Context,
	filter featureswitch.QueryFilter,
	orderings ...core.DBOrdering,
) ([]featureswitch.Rule, error) {
	q, args := buildRuleQuery(filter, orderings...)

	var rows []ruleRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting rules")
	}
	rules := make([]featureswitch.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toRule())
	}
	return rules, nil
}

// buildRuleQuery ANDs the set filter fields. Orderings must already be filtered.
func buildRuleQuery(filter featureswitch.QueryFilter, orderings ...core.DBOrdering) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	addCond := func(col string, val interface{}) {
		args = append(args, val)
		where = append(where, col+" = $"+strconv.Itoa(len(args)))
	}
	if filter.Domain != "" {
		addCond("domain", filter.Domain)
	}
	if filter.FeatureName != "" {
		addCond("feature_name", filter.FeatureName)
	}
	if filter.IsEnabled != nil {
		addCond("is_enabled", *filter.IsEnabled)
	}

	var q strings.Builder
	q.WriteString(`SELECT ` + ruleColumns + ` FROM feature_rule`)
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	orderBy := make([]string, 0, len(orderings)+1)
	for _, ord := range orderings {
		orderBy = append(orderBy, ord.String())
	}
	orderBy = append(orderBy, "created_at ASC") // stable default
	q.WriteString(" ORDER BY " + strings.Join(orderBy, ", "))
	return q.String(), args
}

func (repo *ruleRepository) UpdateRule(ctx context.Context, rule featureswitch.Rule) (featureswitch.Rule, error) {
	if _, err := uuid.Parse(rule.ID); err != nil {
		return featureswitch.Rule{}, featureswitch.ErrRuleNotFound
	}
	q := `UPDATE feature_rule
		SET is_enabled = :is_enabled, percentage = :percentage, message = :message, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toRow(rule))
	if err != nil {
		return featureswitch.Rule{}, errors.Wrap(err, "updating rule")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return featureswitch.Rule{}, featureswitch.ErrRuleNotFound
	}
	return rule, nil
}

func (repo *ruleRepository) DeleteRules(ctx context.Context, ids ...string) error {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM feature_rule WHERE id IN (?)`, valid)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting rules")
	}
	return nil
}
