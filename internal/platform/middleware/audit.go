package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

// AuditEntry is the access record emitted for every API request. Persisting
// it is left to the log pipeline.
type AuditEntry struct {
	RequestID  string
	UserID     string
	UserRoles  []string
	FacilityID string
	PatientID  string
	Resource   string
	Action     string
	Method     string
	Path       string
	IPAddress  string
	StatusCode int
}

// lifecycleVerbs are trailing path segments that name the action directly.
var lifecycleVerbs = map[string]bool{
	"sign":           true,
	"discontinue":    true,
	"execute-checks": true,
}

// Audit emits one order_access event per /api/v1 request after the handler
// has run, so the recorded status is the one the client saw.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c, err)
			evt := logger.Info()
			if entry.StatusCode == http.StatusForbidden || entry.StatusCode == http.StatusUnauthorized {
				evt = logger.Warn()
			}
			evt.
				Str("type", "order_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("facility_id", entry.FacilityID).
				Str("patient_id", entry.PatientID).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("order_access")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	ctx := req.Context()

	status := c.Response().Status
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
	}
	facility, _ := c.Get("facility_id").(string)
	resource, action := auditAction(req.Method, req.URL.Path)

	return AuditEntry{
		RequestID:  requestIDOf(c),
		UserID:     auth.UserIDFromContext(ctx),
		UserRoles:  auth.RolesFromContext(ctx),
		FacilityID: facility,
		PatientID:  extractPatientID(c),
		Resource:   resource,
		Action:     action,
		Method:     req.Method,
		Path:       req.URL.Path,
		IPAddress:  c.RealIP(),
		StatusCode: status,
	}
}

// auditAction derives the resource and action from an /api/v1 path:
//
//	POST /api/v1/patients/<id>/orders   -> orders, create
//	POST /api/v1/orders/<id>/sign       -> orders, sign
//	GET  /api/v1/orderable-items        -> orderable-items, read
func auditAction(method, path string) (string, string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")

	resource := "unknown"
	action := httpMethodToAction(method)
	for _, seg := range segments {
		switch {
		case seg == "" || isUUIDLike(seg):
		case lifecycleVerbs[seg]:
			action = seg
		default:
			resource = seg
		}
	}
	return resource, action
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractPatientID looks at the route parameter, then the path, then the
// patient_id query parameter.
func extractPatientID(c echo.Context) string {
	if pid := c.Param("patient_id"); pid != "" {
		return pid
	}

	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api/v1/patients/") {
		segments := strings.Split(strings.TrimPrefix(path, "/api/v1/patients/"), "/")
		if len(segments) > 0 && isUUIDLike(segments[0]) {
			return segments[0]
		}
	}

	return c.QueryParam("patient_id")
}

func isUUIDLike(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
