package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
)

type gateApi struct {
	registry *featureswitch.Registry
	logger   core.Logger
}

func registerGateAPI(g *echo.Group, jwt echo.MiddlewareFunc, registry *featureswitch.Registry, logger core.Logger) {
	api := gateApi{registry: registry, logger: logger}

	gg := g.Group("/admission/gate", jwt)
	gg.GET("", api.resolve)
	gg.POST("/refresh", api.refresh)
	gg.DELETE("", api.release)
}

// GateResponse is what the dashboard polls to gate the admission workflow.
// Error is informational only: a failed fetch never blocks.
type GateResponse struct {
	Gate     featureswitch.GateResolution `json:"gate"`
	State    featureswitch.State          `json:"state"`
	Bypassed bool                         `json:"bypassed"`
	Error    string                       `json:"error,omitempty"`
}

func gateResponseOf(snap featureswitch.Snapshot) GateResponse {
	return GateResponse{
		Gate:     snap.Resolution,
		State:    snap.State,
		Bypassed: snap.Bypassed,
		Error:    snap.Err,
	}
}

// resolve mounts the session's resolver if needed and resolves it with the caller's current role.
func (api *gateApi) resolve(ctx echo.Context) error {
	sess, claims, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}

	snap := api.registry.Get(sess).ResolveSnapshot(ctx.Request().Context(), claims.Role)

	resp := gateResponseOf(snap)
	if resp.Error != "" {
		api.logger.Debug("admission gate failed open: "+resp.Error, sess)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *gateApi) refresh(ctx echo.Context) error {
	sess, claims, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}

	// a role change since the last resolution counts as a new resolution
	resolver := api.registry.Get(sess)
	snap := resolver.Snapshot()
	if snap.State == featureswitch.StateIdle || snap.Role != claims.Role {
		snap = resolver.ResolveSnapshot(ctx.Request().Context(), claims.Role)
	} else {
		snap = resolver.RefreshSnapshot(ctx.Request().Context())
	}
	return ctx.JSON(http.StatusOK, gateResponseOf(snap))
}

func (api *gateApi) release(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	api.registry.Release(claims.Subject)
	return ctx.NoContent(http.StatusNoContent)
}
