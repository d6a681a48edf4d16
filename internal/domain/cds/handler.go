package cds

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	exec := api.Group("", auth.RequirePermission(auth.PermCDSExecute))
	exec.POST("/cds/execute-checks", h.ExecuteChecks)

	manage := api.Group("", auth.RequirePermission(auth.PermCDSManage))
	manage.GET("/cds-rules", h.ListRules)
	manage.GET("/cds-rules/:id", h.GetRule)
	manage.POST("/cds-rules", h.CreateRule)
	manage.PUT("/cds-rules/:id", h.UpdateRule)
	manage.DELETE("/cds-rules/:id", h.DeleteRule)
}

func (h *Handler) ExecuteChecks(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.PatientID) == "" || strings.TrimSpace(req.OrderableItemID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id and orderable_item_id are required.")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	itemID, err := uuid.Parse(req.OrderableItemID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid orderable_item_id")
	}
	if req.OrderDetails == nil {
		req.OrderDetails = map[string]interface{}{}
	}

	alerts, err := h.svc.ExecuteChecks(c.Request().Context(), patientID, itemID, req.OrderDetails)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"cds_alerts": alerts})
}

func (h *Handler) ListRules(c echo.Context) error {
	pg := pagination.FromContext(c)
	rules, total, err := h.svc.ListRules(c.Request().Context(), RuleType(c.QueryParam("rule_type")), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if rules == nil {
		rules = []*CDSRule{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rules, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rule, err := h.svc.GetRule(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) CreateRule(c echo.Context) error {
	var in RuleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rule, err := h.svc.CreateRule(c.Request().Context(), &in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) UpdateRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in RuleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rule, err := h.svc.UpdateRule(c.Request().Context(), id, &in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) DeleteRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteRule(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
