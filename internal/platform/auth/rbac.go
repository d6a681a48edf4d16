package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin      = "admin"
	RolePhysician  = "physician"
	RoleNurse      = "nurse"
	RolePharmacist = "pharmacist"
)

const (
	PermOrderCreate      = "order:create"
	PermOrderRead        = "order:read"
	PermOrderSign        = "order:sign"
	PermOrderDiscontinue = "order:discontinue"
	PermReadCatalog      = "order:read_catalog"
	PermCatalogManage    = "catalog:manage"
	PermCDSExecute       = "cds:execute"
	PermCDSManage        = "cds:manage"
)

// rolePermissions is the static grant table. Admin is handled separately and
// holds every permission.
var rolePermissions = map[string][]string{
	RolePhysician: {
		PermOrderCreate, PermOrderRead, PermOrderSign, PermOrderDiscontinue,
		PermReadCatalog, PermCDSExecute,
	},
	RoleNurse: {
		PermOrderRead, PermReadCatalog,
	},
	RolePharmacist: {
		PermOrderRead, PermReadCatalog, PermCDSExecute, PermCDSManage,
	},
}

// HasPermission reports whether any of roles grants perm.
func HasPermission(roles []string, perm string) bool {
	for _, r := range roles {
		if r == RoleAdmin {
			return true
		}
		for _, p := range rolePermissions[r] {
			if p == perm {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequirePermission gates a route on a permission resolved from the caller's roles.
func RequirePermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserIDFromContext(c.Request().Context()) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !HasPermission(RolesFromContext(c.Request().Context()), perm) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required permission: %s", perm))
			}
			return next(c)
		}
	}
}
