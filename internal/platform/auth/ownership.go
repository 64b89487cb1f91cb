package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ChildDirectory answers whether a child belongs to a user. This package
// only consumes the directory; who provides it is a wiring concern.
type ChildDirectory interface {
	ChildBelongsTo(ctx context.Context, childID, userID string) (bool, error)
}

// RequireOwnership guards child-scoped routes: the :child_id path parameter
// must belong to the authenticated user. Domain services behind this guard
// assume ownership has already been verified and do not re-check it.
func RequireOwnership(dir ChildDirectory) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			childID := c.Param("child_id")
			if childID == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}

			owns, err := dir.ChildBelongsTo(ctx, childID, userID)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "ownership check failed")
			}
			if !owns {
				return echo.NewHTTPError(http.StatusForbidden, "child does not belong to user")
			}
			return next(c)
		}
	}
}
