package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	metricsvc "github.com/trezcool/masomo-admin/services/metrics"
)

// adminMiddleware only lets admins and root through.
func adminMiddleware(rootRole string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if isPrivileged(claims.Role, rootRole) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func metricsMiddleware(m *metricsvc.Prom) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err) // commit the response so the status is known
			}
			status := strconv.Itoa(ctx.Response().Status)
			m.ObserveRequest(ctx.Request().Method, ctx.Path(), status, time.Since(start).Seconds())
			return nil
		}
	}
}
