package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/isolation"
)

// resolutionKey is the echo context key holding the request's resolution.
const resolutionKey = "ragd.isolation"

// isolationMiddleware resolves the tenant isolation key for every API
// request and, in session mode, echoes it back so the client can persist
// it. Expired-session sweeps piggyback on request traffic here.
func (s *Server) isolationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var incoming string
		switch s.deps.Resolver.Mode() {
		case isolation.ModeSession:
			incoming = c.Request().Header.Get(HeaderSessionID)
		case isolation.ModeCustom:
			incoming = c.Request().Header.Get(HeaderIsolationKey)
		}

		res, err := s.deps.Resolver.Resolve(incoming)
		if err != nil {
			if errors.Is(err, isolation.ErrUnsafeKey) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid isolation key")
			}
			s.logger.Error("isolation resolution failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "isolation resolution failed")
		}

		if res.Echo {
			c.Response().Header().Set(HeaderSessionID, res.Key)
		}
		c.Set(resolutionKey, res)

		if s.deps.Sweeper != nil {
			s.deps.Sweeper.MaybeSweep(c.Request().Context())
		}

		return next(c)
	}
}

// resolution returns the isolation resolution stored by the middleware.
func resolution(c echo.Context) isolation.Resolution {
	if res, ok := c.Get(resolutionKey).(isolation.Resolution); ok {
		return res
	}
	return isolation.Resolution{}
}
