package httpapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/themedup/internal/auth"
)

const headerAPIKey = "X-API-Key"

// requireAPIKey guards mutating routes. Without a configured hash every
// request passes.
func (s *Server) requireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.opts.APIKeyHash == "" {
				return next(c)
			}

			key := strings.TrimSpace(c.Request().Header.Get(headerAPIKey))
			if key == "" || !auth.VerifyAPIKey(key, s.opts.APIKeyHash) {
				s.logger.Warn().
					Str("uri", c.Request().RequestURI).
					Str("remote_ip", c.RealIP()).
					Bool("key_present", key != "").
					Msg("rejected request without a valid api key")
				return failUnauthorized(c)
			}
			return next(c)
		}
	}
}
