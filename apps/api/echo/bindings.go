package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	if val := ctx.QueryParam(orderingParam); val != "" {
		ord.Orderings = core.ParseOrderings(val)
	}
}

// bindRuleFilter reads a featureswitch.QueryFilter from the query string.
// An unparsable is_enabled is ignored.
func bindRuleFilter(ctx echo.Context) featureswitch.QueryFilter {
	filter := featureswitch.QueryFilter{
		Domain:      ctx.QueryParam("domain"),
		FeatureName: ctx.QueryParam("feature_name"),
	}
	if val := ctx.QueryParam("is_enabled"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			filter.IsEnabled = &enabled
		}
	}
	filter.Clean()
	return filter
}
