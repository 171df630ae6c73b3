package billing

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
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
	// Read endpoints: billing, staff (admin always passes)
	read := g.Group("", auth.RequireRole(auth.RoleBilling, auth.RoleStaff))
	read.GET("/billings", h.ListBillings)
	read.GET("/billings/:id", h.GetBilling)
	read.GET("/billings/:id/items", h.ListItems)
	read.GET("/patients/:patient_id/billings", h.ListBillingsForPatient)

	// Write endpoints: billing
	write := g.Group("", auth.RequireRole(auth.RoleBilling))
	write.POST("/billings", h.OpenBilling)
	write.PATCH("/billings/:id/toggle-delete", h.ToggleDeleteBilling)
	write.POST("/billings/:id/finalize", h.FinalizeBilling)
	write.POST("/billings/:id/items", h.AddItem)
	write.PATCH("/billing-items/:id", h.UpdateItem)
	write.PATCH("/billing-items/:id/toggle-delete", h.ToggleDeleteItem)
}

type openBillingRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
}

type addItemRequest struct {
	ServiceID string           `json:"service_id" validate:"required,uuid"`
	Quantity  *int             `json:"quantity" validate:"omitempty,min=1,max=1000000"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type updateItemRequest struct {
	Quantity  *int             `json:"quantity" validate:"omitempty,min=1,max=1000000"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// -- Billing Handlers --

func (h *Handler) OpenBilling(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return api.Failure(c, err)
	}
	var req openBillingRequest
	if err := api.Bind(c, &req); err != nil {
		return api.Failure(c, err)
	}

	b, err := h.svc.OpenBilling(ctx, uuid.MustParse(req.PatientID), actor)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusCreated, "billing", b)
}

func (h *Handler) GetBilling(c echo.Context) error {
	id, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	b, err := h.svc.GetBilling(c.Request().Context(), id)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusOK, "billing", b)
}

func (h *Handler) ListBillings(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := BillingFilter{PaymentStatus: PaymentStatus(c.QueryParam("payment_status"))}
	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return api.Failure(c, apperr.InvalidArgument("invalid patient_id"))
		}
		filter.PatientID = &pid
	}
	if v := c.QueryParam("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return api.Failure(c, apperr.InvalidArgument("include_deleted must be a boolean"))
		}
		filter.IncludeDeleted = b
	}

	out, total, err := h.svc.ListBillings(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Paged(c, "billing", out, pg.Page(total))
}

func (h *Handler) ListBillingsForPatient(c echo.Context) error {
	pid, err := api.ParseUUIDParam(c, "patient_id")
	if err != nil {
		return api.Failure(c, err)
	}
	pg := pagination.FromContext(c)
	out, total, err := h.svc.ListBillingsForPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Paged(c, "billing", out, pg.Page(total))
}

func (h *Handler) ToggleDeleteBilling(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return api.Failure(c, err)
	}
	id, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	b, err := h.svc.ToggleDeleteBilling(ctx, id, actor)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusOK, "billing", b)
}

func (h *Handler) FinalizeBilling(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return api.Failure(c, err)
	}
	id, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	b, err := h.svc.FinalizeBilling(ctx, id, actor)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusOK, "billing", b)
}

// -- Item Handlers --

func (h *Handler) AddItem(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return api.Failure(c, err)
	}
	billingID, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	var req addItemRequest
	if err := api.Bind(c, &req); err != nil {
		return api.Failure(c, err)
	}

	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	it, err := h.svc.AddItem(ctx, billingID, AddItemInput{
		ServiceID: uuid.MustParse(req.ServiceID),
		Quantity:  qty,
		UnitPrice: req.UnitPrice,
	}, actor)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusCreated, "item", it)
}

func (h *Handler) ListItems(c echo.Context) error {
	billingID, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	items, err := h.svc.ListItems(c.Request().Context(), billingID)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusOK, "items", items)
}

func (h *Handler) UpdateItem(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return api.Failure(c, err)
	}
	id, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	var req updateItemRequest
	if err := api.Bind(c, &req); err != nil {
		return api.Failure(c, err)
	}

	it, err := h.svc.UpdateItem(ctx, id, UpdateItemInput{Quantity: req.Quantity, UnitPrice: req.UnitPrice}, actor)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusOK, "item", it)
}

func (h *Handler) ToggleDeleteItem(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return api.Failure(c, err)
	}
	id, err := api.ParseUUIDParam(c, "id")
	if err != nil {
		return api.Failure(c, err)
	}
	it, err := h.svc.ToggleDeleteItem(ctx, id, actor)
	if err != nil {
		return api.Failure(c, err)
	}
	return api.Success(c, http.StatusOK, "item", it)
}
