package server

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/ports"
)

const identityKey = "identity"

// authMiddleware verifies the bearer credential and stores the
// identity on the request context.
func (s *Server) authMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return entities.ErrTokenMissing
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return entities.ErrTokenMalformed
			}

			identity, err := s.deps.Auth.VerifyToken(parts[1])
			if err != nil {
				s.logger.Warnw("Credential rejected", "error", err, "ip", c.RealIP())
				return err
			}

			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// tenantMiddleware asserts the path user_id equals the credential's.
// A mismatch is a tenant violation, distinct from unauthenticated.
func (s *Server) tenantMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := c.Get(identityKey).(*ports.Identity)
			if !ok {
				return entities.ErrTokenMissing
			}

			pathID, err := uuid.Parse(c.Param("user_id"))
			if err != nil {
				return &entities.ValidationError{Field: "user_id", Message: "must be a uuid"}
			}

			if pathID != identity.UserID {
				s.logger.LogSecurityEvent("tenant_violation", identity.UserID.String(), c.RealIP(),
					map[string]interface{}{
						"path_user_id": pathID.String(),
						"endpoint":     c.Request().URL.Path,
					})
				return entities.ErrTenantViolation
			}

			return next(c)
		}
	}
}
