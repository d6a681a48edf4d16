package cpoe

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/cds"
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
	create := api.Group("", auth.RequirePermission(auth.PermOrderCreate))
	create.POST("/patients/:patient_id/orders", h.SubmitOrder)

	read := api.Group("", auth.RequirePermission(auth.PermOrderRead))
	read.GET("/patients/:patient_id/orders", h.ListOrders)
	read.GET("/orders/:id", h.GetOrder)
	read.GET("/orders/:id/history", h.GetOrderHistory)

	sign := api.Group("", auth.RequirePermission(auth.PermOrderSign))
	sign.POST("/orders/:id/sign", h.SignOrder)

	discontinue := api.Group("", auth.RequirePermission(auth.PermOrderDiscontinue))
	discontinue.POST("/orders/:id/discontinue", h.DiscontinueOrder)
}

type submitResponse struct {
	Message  string      `json:"message"`
	OrderID  uuid.UUID   `json:"order_id"`
	Status   OrderStatus `json:"status"`
	Warnings []cds.Alert `json:"warnings"`
}

type blockedResponse struct {
	Message   string      `json:"message"`
	CDSAlerts []cds.Alert `json:"cds_alerts"`
}

type transitionResponse struct {
	Message string      `json:"message"`
	OrderID uuid.UUID   `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

func (h *Handler) SubmitOrder(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	var req OrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	result, err := h.svc.SubmitOrder(ctx, patientID, auth.UserIDFromContext(ctx), &req)
	if err != nil {
		return apperr.ToHTTP(err)
	}

	if result.Outcome == OutcomeBlocked {
		return c.JSON(http.StatusBadRequest, blockedResponse{Message: result.Message, CDSAlerts: result.Alerts})
	}
	return c.JSON(http.StatusCreated, submitResponse{
		Message:  result.Message,
		OrderID:  result.Order.ID,
		Status:   result.Order.Status,
		Warnings: result.Alerts,
	})
}

func (h *Handler) ListOrders(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	pg := pagination.FromContext(c)
	orders, total, err := h.svc.ListOrders(c.Request().Context(), patientID, OrderStatus(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if orders == nil {
		orders = []*Order{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetOrderHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	changes, err := h.svc.OrderHistory(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if changes == nil {
		changes = []*StatusChange{}
	}
	return c.JSON(http.StatusOK, changes)
}

func (h *Handler) SignOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	o, err := h.svc.SignOrder(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, transitionResponse{Message: MsgOrderSigned, OrderID: o.ID, Status: o.Status})
}

func (h *Handler) DiscontinueOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req DiscontinueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := apperr.ValidateStruct(&req); err != nil {
		return apperr.ToHTTP(err)
	}

	ctx := c.Request().Context()
	o, err := h.svc.DiscontinueOrder(ctx, id, auth.UserIDFromContext(ctx), req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, transitionResponse{Message: MsgOrderDiscontinued, OrderID: o.ID, Status: o.Status})
}
