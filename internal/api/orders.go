package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/middleware"
	"github.com/khidmahub/khidmahub/internal/money"
	"github.com/khidmahub/khidmahub/internal/orders"
)

// OrderHandlers exposes the order lifecycle over HTTP.
type OrderHandlers struct {
	ledger *orders.Ledger
	log    *zap.Logger
}

func NewOrderHandlers(ledger *orders.Ledger, log *zap.Logger) *OrderHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderHandlers{ledger: ledger, log: log}
}

func pathID(c echo.Context, name string) (uuid.UUID, bool) {
	return pathIDFromString(c.Param(name))
}

func pathIDFromString(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	return id, err == nil
}

func (h *OrderHandlers) Create(c echo.Context) error {
	var in orders.CreateOrderInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	o, err := h.ledger.CreateOrder(c.Request().Context(), middleware.Actor(c), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"order": o})
}

func (h *OrderHandlers) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	o, err := h.ledger.GetOrder(c.Request().Context(), middleware.Actor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

func (h *OrderHandlers) List(c echo.Context) error {
	var status *orders.Status
	if s := c.QueryParam("status"); s != "" {
		st := orders.Status(s)
		status = &st
	}
	limit, offset := pagination(c)
	list, err := h.ledger.ListOrders(c.Request().Context(), middleware.Actor(c), status, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if list == nil {
		list = []orders.Order{}
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": list})
}

// transition is the shared shape of all single-verb lifecycle endpoints.
func (h *OrderHandlers) transition(c echo.Context, do func(uuid.UUID) (orders.Order, error)) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	o, err := do(id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

func (h *OrderHandlers) Accept(c echo.Context) error {
	actor := middleware.Actor(c)
	return h.transition(c, func(id uuid.UUID) (orders.Order, error) {
		return h.ledger.AcceptOrder(c.Request().Context(), actor, id)
	})
}

func (h *OrderHandlers) Start(c echo.Context) error {
	actor := middleware.Actor(c)
	return h.transition(c, func(id uuid.UUID) (orders.Order, error) {
		return h.ledger.StartOrder(c.Request().Context(), actor, id)
	})
}

func (h *OrderHandlers) Decline(c echo.Context) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	actor := middleware.Actor(c)
	return h.transition(c, func(id uuid.UUID) (orders.Order, error) {
		return h.ledger.DeclineOrder(c.Request().Context(), actor, id, body.Reason)
	})
}

func (h *OrderHandlers) Complete(c echo.Context) error {
	actor := middleware.Actor(c)
	return h.transition(c, func(id uuid.UUID) (orders.Order, error) {
		return h.ledger.CompleteOrder(c.Request().Context(), actor, id)
	})
}

func (h *OrderHandlers) ApproveCompletion(c echo.Context) error {
	actor := middleware.Actor(c)
	return h.transition(c, func(id uuid.UUID) (orders.Order, error) {
		return h.ledger.ApproveCompletion(c.Request().Context(), actor, id)
	})
}

func (h *OrderHandlers) Cancel(c echo.Context) error {
	actor := middleware.Actor(c)
	return h.transition(c, func(id uuid.UUID) (orders.Order, error) {
		return h.ledger.CancelOrder(c.Request().Context(), actor, id)
	})
}

func (h *OrderHandlers) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	if err := h.ledger.SoftDeleteOrder(c.Request().Context(), middleware.Actor(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *OrderHandlers) CreateOffer(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var body struct {
		ProposedPrice money.Cents `json:"proposed_price"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	of, err := h.ledger.CreateOffer(c.Request().Context(), middleware.Actor(c), id, body.ProposedPrice)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"offer": of})
}

func (h *OrderHandlers) ListOffers(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	list, err := h.ledger.ListOffers(c.Request().Context(), middleware.Actor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if list == nil {
		list = []orders.Offer{}
	}
	return c.JSON(http.StatusOK, echo.Map{"offers": list})
}

func (h *OrderHandlers) AcceptOffer(c echo.Context) error {
	offerID, ok := pathID(c, "offer_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid offer id"})
	}
	o, err := h.ledger.AcceptOffer(c.Request().Context(), middleware.Actor(c), offerID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

func (h *OrderHandlers) CreateNegotiation(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var body struct {
		Message       string       `json:"message"`
		ProposedPrice *money.Cents `json:"proposed_price,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	n, err := h.ledger.CreateNegotiation(c.Request().Context(), middleware.Actor(c), id, body.Message, body.ProposedPrice)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"negotiation": n})
}

func (h *OrderHandlers) ListNegotiations(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	list, err := h.ledger.ListNegotiations(c.Request().Context(), middleware.Actor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if list == nil {
		list = []orders.Negotiation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"negotiations": list})
}
