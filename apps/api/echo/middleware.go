package echoapi

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"

	"github.com/lawnetwork/lawnet/core"
)

const adminKeyHeader = "X-Admin-Key"

// adminKeyMiddleware guards admin endpoints with the shared static key.
// Authorization failures are 403s; there is no notion of partially
// privileged callers.
func adminKeyMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := ctx.Request().Header.Get(adminKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(conf.AdminKey)) != 1 {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
