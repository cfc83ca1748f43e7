package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core/user"
)

// scopeMiddleware loads the authenticated User & resolves their access scope once per request.
func scopeMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.Active() {
				return errAccountDeactivated
			}
			ctx.Set(contextScopeKey, user.ScopeOf(usr))
			return next(ctx)
		}
	}
}

// staffMiddleware only lets admins & clerks through, optionally restricted to the given roles.
func staffMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsStaff && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return staffMiddleware(user.RoleAdmin)
}

// scopeKindMiddleware only lets the given scopes through.
func scopeKindMiddleware(kinds ...user.ScopeKind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			scope, err := getContextScope(ctx)
			if err != nil {
				return err
			}
			for _, kind := range kinds {
				if scope.Kind == kind {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func teacherOrStaffMiddleware() echo.MiddlewareFunc {
	return scopeKindMiddleware(user.ScopeTeacher, user.ScopeStaff)
}

func representativeOrStaffMiddleware() echo.MiddlewareFunc {
	return scopeKindMiddleware(user.ScopeRepresentative, user.ScopeStaff)
}

// objectMiddleware loads the `:id` object with `get` and stores it in the context under "object".
func objectMiddleware(get func(ctx echo.Context, id string) (interface{}, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			obj, err := get(ctx, ctx.Param("id"))
			if err != nil {
				return err
			}
			ctx.Set(contextObjectKey, obj)
			return next(ctx)
		}
	}
}
