package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/billing"
	"github.com/khidmahub/khidmahub/internal/middleware"
)

// InvoiceHandlers exposes settlement reads and the admin payment endpoint.
type InvoiceHandlers struct {
	engine *billing.Engine
	log    *zap.Logger
}

func NewInvoiceHandlers(engine *billing.Engine, log *zap.Logger) *InvoiceHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &InvoiceHandlers{engine: engine, log: log}
}

func pagination(c echo.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	offset, _ = strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// invoiceView renders an invoice with its derived status.
func invoiceView(inv billing.Invoice) echo.Map {
	return echo.Map{
		"invoice": inv,
		"status":  inv.EffectiveStatus(time.Now().UTC()),
	}
}

func (h *InvoiceHandlers) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invoice id"})
	}
	inv, err := h.engine.GetInvoice(c.Request().Context(), middleware.Actor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, invoiceView(inv))
}

func (h *InvoiceHandlers) List(c echo.Context) error {
	var status *billing.InvoiceStatus
	if s := c.QueryParam("status"); s != "" {
		st := billing.InvoiceStatus(s)
		status = &st
	}
	limit, offset := pagination(c)
	list, err := h.engine.ListInvoices(c.Request().Context(), middleware.Actor(c), status, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if list == nil {
		list = []billing.Invoice{}
	}
	now := time.Now().UTC()
	views := make([]echo.Map, 0, len(list))
	for _, inv := range list {
		views = append(views, echo.Map{"invoice": inv, "status": inv.EffectiveStatus(now)})
	}
	return c.JSON(http.StatusOK, echo.Map{"invoices": views})
}

func (h *InvoiceHandlers) Pay(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invoice id"})
	}
	var body struct {
		Method billing.PaymentMethod `json:"method"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	inv, err := h.engine.MarkInvoicePaid(c.Request().Context(), middleware.Actor(c), id, body.Method)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, invoiceView(inv))
}

func (h *InvoiceHandlers) ListEarnings(c echo.Context) error {
	actor := middleware.Actor(c)
	providerID := actor.ID
	if s := c.QueryParam("provider_id"); s != "" {
		id, ok := pathIDFromString(s)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid provider id"})
		}
		providerID = id
	}
	limit, offset := pagination(c)
	list, err := h.engine.ListEarnings(c.Request().Context(), actor, providerID, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if list == nil {
		list = []billing.WorkerEarnings{}
	}
	return c.JSON(http.StatusOK, echo.Map{"earnings": list})
}
