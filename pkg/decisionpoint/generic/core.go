//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package generic implements the HTTP/REST decision point.
package generic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trustline/authguard/internal/logging"
	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core"
	"github.com/trustline/authguard/pkg/core/model"
	"github.com/trustline/authguard/pkg/decisionpoint"
)

var logger = logging.GetLogger("authguard.decisionpoint")

const agent = "generic"

// errorBody is the machine-readable error shape. Internal detail beyond
// the structured fields never leaves the server.
type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// healthBody is the health endpoint response.
type healthBody struct {
	Status        string `json:"status"`
	RiskMode      string `json:"risk_mode"`
	PolicyVersion string `json:"policy_version"`
}

// Server represents a generic decision point server that serves the REST API.
type Server struct {
	echo *echo.Echo
}

// CreateServer creates and starts a new generic decision point server on
// the given port.
func CreateServer(eng core.DecisionEngine, port int) (decisionpoint.Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	h := &handler{engine: eng}
	e.POST("/v1/evaluate-login", h.evaluateLogin)
	e.GET("/healthz", h.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Start server in goroutine since e.Start() blocks
	go func() {
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			logger.Fatalf(agent, "start", "server failed: %v", err)
		}
	}()

	logger.Infof(agent, "start", "decision point listening on :%d", port)

	return &Server{echo: e}, nil
}

// Stop gracefully stops the Server by shutting down the Echo HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type handler struct {
	engine core.DecisionEngine
}

func (h *handler) evaluateLogin(c echo.Context) error {
	var in model.InputContext
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{
			Code:    string(common.CodeValidation),
			Message: "malformed request body",
		})
	}

	resp, err := h.engine.EvaluateLogin(c.Request().Context(), &in)
	if err != nil {
		return c.JSON(statusFor(err), toErrorBody(err))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthBody{
		Status:        "ok",
		RiskMode:      h.engine.RiskMode(),
		PolicyVersion: h.engine.PolicyVersion(),
	})
}

func statusFor(err error) int {
	code, ok := common.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case common.CodeValidation:
		return http.StatusBadRequest
	case common.CodePolicyViolation:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func toErrorBody(err error) errorBody {
	var serr *common.Error
	if errors.As(err, &serr) {
		return errorBody{
			Code:    string(serr.Code),
			Message: serr.Message,
			Details: serr.Details,
		}
	}
	return errorBody{
		Code:    string(common.CodeAgent),
		Message: "evaluation failed",
	}
}
