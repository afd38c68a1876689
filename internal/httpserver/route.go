package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/muhammadshahms/shoe-shop/internal/db"
	"github.com/muhammadshahms/shoe-shop/internal/metrics"
	"github.com/muhammadshahms/shoe-shop/internal/middleware/auth"
)

type Deps struct {
	DB              *gorm.DB
	CheckoutHandler *CheckoutHTTP
	OrderHandler    *OrderHTTP
	CatalogHandler  *CatalogHTTP
	AuthHandler     *AuthHTTP
	JWTSecret       []byte
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx, d.DB); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	authMW := auth.New(d.JWTSecret)
	api := e.Group("/api/v1")

	a := api.Group("/auth")
	a.POST("/register", d.AuthHandler.Register)
	a.POST("/login", d.AuthHandler.Login)
	a.POST("/logout", d.AuthHandler.Logout)

	products := api.Group("/products")
	products.GET("/search", d.CatalogHandler.SearchProducts)
	products.GET("", d.CatalogHandler.GetProducts)
	products.GET("/:id", d.CatalogHandler.GetProduct)

	user := api.Group("", authMW.RequireAuth)
	user.POST("/checkout", d.CheckoutHandler.PlaceOrder)
	user.GET("/orders", d.OrderHandler.ListMine)
	user.GET("/orders/:id", d.OrderHandler.GetMine)
	user.GET("/orders/number/:number", d.OrderHandler.GetByNumber)
	user.GET("/orders/number/:number/status", d.OrderHandler.StatusByNumber)

	admin := api.Group("/admin", authMW.RequireAdmin)
	admin.POST("/products", d.CatalogHandler.CreateProduct)
	admin.PATCH("/products/:id", d.CatalogHandler.PatchProduct)
	admin.DELETE("/products/:id", d.CatalogHandler.DeleteProduct)
	admin.GET("/orders", d.OrderHandler.ListAll)
	admin.PATCH("/orders/:id/status", d.OrderHandler.UpdateStatus)
	admin.PATCH("/orders/:id/payment", d.OrderHandler.UpdatePayment)
	admin.DELETE("/orders/:id", d.OrderHandler.Delete)
}
