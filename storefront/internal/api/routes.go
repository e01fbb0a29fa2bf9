package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker is anything /health reports on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func(ctx context.Context) error

func (f HealthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// NATSCheck reports a NATS connection as healthy when it is connected and flushes.
func NATSCheck(nc *nats.Conn) HealthChecker {
	return HealthFunc(func(ctx context.Context) error {
		if nc == nil || !nc.IsConnected() {
			return nats.ErrConnectionClosed
		}
		return nc.FlushWithContext(ctx)
	})
}

func RegisterRoutes(app *fiber.App, checks map[string]HealthChecker, storefront *StorefrontHandler, review *ReviewHandler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		status := "ok"
		code := fiber.StatusOK
		results := make(map[string]string, len(checks))

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check.HealthCheck(healthCtx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	})

	v1 := app.Group("/api/v1")
	v1.Get("/products", storefront.ListProducts)
	v1.Get("/products/:productId", storefront.GetProduct)

	sessions := v1.Group("/sessions/:sessionId")
	sessions.Get("/", storefront.GetSession)
	sessions.Get("/cart", storefront.GetCart)
	sessions.Post("/cart", storefront.AddToCart)
	sessions.Delete("/cart", storefront.ClearCart)
	sessions.Delete("/cart/:line", storefront.RemoveLine)
	sessions.Post("/checkout", storefront.Checkout)
	sessions.Post("/proof", storefront.SubmitProof)
	sessions.Post("/details", storefront.SubmitDetails)

	rv := v1.Group("/review")
	rv.Get("/batches", review.ListPending)
	rv.Get("/batches/:batchId", review.GetBatch)
	rv.Post("/batches/:batchId/confirm", review.Confirm)
	rv.Post("/batches/:batchId/reject", review.Reject)
	rv.Post("/batches/:batchId/dispatch", review.Dispatch)
	rv.Post("/batches/:batchId/picked-up", review.PickedUp)
	rv.Post("/batches/:batchId/returned", review.Returned)
	rv.Post("/products", review.CreateProduct)
	rv.Patch("/products/:productId", review.EditProduct)
	rv.Delete("/products/:productId", review.WithdrawProduct)
}
