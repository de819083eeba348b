package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"CoinPulse/pkg/logger"
)

// RequestLogging logs one line per request. 5xx responses log at error
// level, anything slower than slow at warn, the rest at debug.
func RequestLogging(l *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	if l == nil {
		l = logger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			latency := time.Since(start)
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", c.Path()),
				logger.Int("status", res.Status),
				logger.Duration("latency", latency),
				logger.Int64("bytes", res.Size),
			}

			switch {
			case res.Status >= 500:
				if err != nil {
					fields = append(fields, logger.Error(err))
				}
				l.Error("http request failed", fields...)
			case slow > 0 && latency >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
