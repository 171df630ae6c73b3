package catalog

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/api"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	read := g.Group("", auth.RequireRole(auth.RoleBilling, auth.RoleStaff))
	read.GET("/billing-services", h.ListServices)
	read.GET("/billing-services/:id", h.GetService)

	write := g.Group("", auth.RequireRole(auth.RoleBilling))
	write.POST("/billing-services", h.CreateService)
	write.PATCH("/billing-services/:id", h.UpdateService)
	write.PATCH("/billing-services/:id/toggle-delete", h.ToggleDeleteService)
}

type createServiceRequest struct {
	Name         string          `json:"name" validate:"required,max=255"`
	Description  *string         `json:"description"`
	DefaultPrice decimal.Decimal `json:"default_price"`
	Category     *string         `json:"category" validate:"omitempty,max=100"`
}

type updateServiceRequest struct {
	Name         *string          `json:"name" validate:"omitempty,max=255"`
	Description  *string          `json:"description"`
	DefaultPrice *decimal.Decimal `json:"default_price"`
	Category     *string          `json:"category" validate:"omitempty,max=100"`
}

func (h *Handler) CreateService(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return api.Failure(c, err)
	}
	var req createServiceRequest
	if err := api.Bind(c, &req); err != nil {
		return api.Failure(c, err)
	}

	svc, err := h.svc.CreateService(ctx, CreateServiceInput{
		Name:         req.Name,
		Description:  req.Description,
		DefaultPrice: req.DefaultPrice,
		Category:     req.Category,
	}, actor)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusCreated, "service", svc)
}

func (h *Handler) ListServices(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := ServiceFilter{Category: c.QueryParam("category")}
	if v := c.QueryParam("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return api.Failure(c, apperr.InvalidArgument("include_deleted must be a boolean"))
		}
		filter.IncludeDeleted = b
	}

	items, total, err := h.svc.ListServices(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Paged(c, "service", items, pg.Page(total))
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	svc, err := h.svc.GetService(c.Request().Context(), id)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusOK, "service", svc)
}

func (h *Handler) UpdateService(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return api.Failure(c, err)
	}
	id, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	var req updateServiceRequest
	if err := api.Bind(c, &req); err != nil {
		return api.Failure(c, err)
	}

	svc, err := h.svc.UpdateService(ctx, id, ServicePatch{
		Name:         req.Name,
		Description:  req.Description,
		DefaultPrice: req.DefaultPrice,
		Category:     req.Category,
	}, actor)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusOK, "service", svc)
}

func (h *Handler) ToggleDeleteService(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return api.Failure(c, err)
	}
	id, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	svc, err := h.svc.ToggleDeleteService(ctx, id, actor)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusOK, "service", svc)
}
