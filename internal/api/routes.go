package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/identity"
	appmw "github.com/khidmahub/khidmahub/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Orders        *OrderHandlers
	Invoices      *InvoiceHandlers
	Notifications *NotificationHandlers
}

// NewRouter builds the echo instance with all routes mounted. Everything
// except /health sits behind JWT auth.
func NewRouter(h Handlers, jwtSecret string, log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	if log != nil {
		e.Use(requestLogger(log))
	}

	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	g := e.Group("")
	g.Use(appmw.JWT(jwtSecret))

	// Orders
	g.POST("/orders", h.Orders.Create)
	g.GET("/orders", h.Orders.List)
	g.GET("/orders/:id", h.Orders.Get)
	g.DELETE("/orders/:id", h.Orders.Delete)
	g.POST("/orders/:id/accept", h.Orders.Accept)
	g.POST("/orders/:id/start", h.Orders.Start)
	g.POST("/orders/:id/decline", h.Orders.Decline)
	g.POST("/orders/:id/complete", h.Orders.Complete)
	g.POST("/orders/:id/approve_completion", h.Orders.ApproveCompletion)
	g.POST("/orders/:id/cancel", h.Orders.Cancel)

	// Offers and negotiations
	g.POST("/orders/:id/offers", h.Orders.CreateOffer)
	g.GET("/orders/:id/offers", h.Orders.ListOffers)
	g.POST("/offers/:offer_id/accept", h.Orders.AcceptOffer)
	g.POST("/orders/:id/negotiations", h.Orders.CreateNegotiation)
	g.GET("/orders/:id/negotiations", h.Orders.ListNegotiations)

	// Invoices and earnings
	g.GET("/invoices", h.Invoices.List)
	g.GET("/invoices/:id", h.Invoices.Get)
	g.POST("/invoices/:id/pay", h.Invoices.Pay, appmw.RequireRoles(identity.RoleAdmin))
	g.GET("/earnings", h.Invoices.ListEarnings)

	// Notification feed
	g.GET("/notifications", h.Notifications.List)
	g.GET("/notifications/unread_count", h.Notifications.UnreadCount)
	g.POST("/notifications/:id/read", h.Notifications.MarkRead)
	g.POST("/notifications/read_all", h.Notifications.MarkAllRead)
	g.POST("/notifications/:id/action", h.Notifications.RecordAction)

	return e
}

// requestLogger emits one structured line per request.
func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	})
}
