package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/smartplaylist/api/internal/metrics"
)

// Metrics counts requests by method, matched route and status.
func Metrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.ObserveRequest(c.Method(), c.Route().Path, status)
		return err
	}
}
