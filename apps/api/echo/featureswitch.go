package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core/featureswitch"
	"github.com/trezcool/masomo-admin/services/featurestatus"
)

type featureSwitchApi struct {
	svc      *featureswitch.Service
	validate *validator.Validate
	rootRole string
}

func registerFeatureSwitchAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *featureswitch.Service,
	validate *validator.Validate,
	rootRole string,
) {
	api := featureSwitchApi{
		svc:      svc,
		validate: validate,
		rootRole: rootRole,
	}

	fg := g.Group("/feature-switch", jwt)
	fg.GET("/status", api.status)

	rg := fg.Group("/rules", adminMiddleware(rootRole))
	rg.GET("", api.query)
	rg.POST("", api.create)
	rg.DELETE("", api.destroyMultiple)
	rg.GET("/:id", api.retrieve)
	rg.PATCH("/:id", api.update)
	rg.DELETE("/:id", api.destroy)
}

type StatusResponse struct {
	Data featureswitch.DetailedStatus `json:"data"`
}

// status evaluates the rules for the caller's school.
// Admins and root may look at another school with ?school_id= or the X-School-ID header.
func (api *featureSwitchApi) status(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	schoolID := claims.SchoolID
	if isPrivileged(claims.Role, api.rootRole) {
		if id := ctx.QueryParam("school_id"); id != "" {
			schoolID = id
		} else if id = ctx.Request().Header.Get(featurestatus.HeaderSchoolID); id != "" {
			schoolID = id
		}
	}

	ds, err := api.svc.DetailedStatus(ctx.Request().Context(), schoolID)
	if err != nil {
		return errors.Wrap(err, "evaluating feature status")
	}
	return ctx.JSON(http.StatusOK, StatusResponse{Data: ds})
}

func (api *featureSwitchApi) query(ctx echo.Context) error {
	filter := bindRuleFilter(ctx)
	ordering := new(Ordering)
	ordering.Bind(ctx)

	rules, err := api.svc.QueryRules(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying rules")
	}
	if rules == nil {
		rules = []featureswitch.Rule{}
	}
	return ctx.JSON(http.StatusOK, rules)
}

func (api *featureSwitchApi) create(ctx echo.Context) error {
	var data featureswitch.NewRule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rule, err := api.svc.CreateRule(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating rule")
	}
	return ctx.JSON(http.StatusCreated, rule)
}

func (api *featureSwitchApi) retrieve(ctx echo.Context) error {
	rule, err := api.svc.GetRule(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding rule by ID")
	}
	return ctx.JSON(http.StatusOK, rule)
}

func (api *featureSwitchApi) update(ctx echo.Context) error {
	var data featureswitch.UpdateRule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rule, err := api.svc.UpdateRule(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}

func (api *featureSwitchApi) destroy(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	if _, err := api.svc.GetRule(reqCtx, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "finding rule by ID")
	}
	if err := api.svc.DeleteRules(reqCtx, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting rule")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *featureSwitchApi) destroyMultiple(ctx echo.Context) error {
	ids := ctx.QueryParams()["id"]
	if err := api.svc.DeleteRules(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "deleting rules")
	}
	return ctx.NoContent(http.StatusNoContent)
}
