//
//  Copyright © Trustline Inc. All rights reserved.
//

package generic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/model"
	"github.com/trustline/authguard/pkg/core/policy"
	"github.com/trustline/authguard/pkg/ledger"
)

// stubEngine scripts the engine behind the handler.
type stubEngine struct {
	resp *model.Response
	err  error
}

func (s *stubEngine) EvaluateLogin(context.Context, *model.InputContext) (*model.Response, error) {
	return s.resp, s.err
}

func (s *stubEngine) ReloadPolicy(*policy.Document) error { return nil }
func (s *stubEngine) PolicyVersion() string               { return "builtin-1" }
func (s *stubEngine) RiskMode() string                    { return "heuristic" }
func (s *stubEngine) Audit() *ledger.Writer               { return nil }
func (s *stubEngine) Shutdown(context.Context) error      { return nil }

func invoke(t *testing.T, eng *stubEngine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h := &handler{engine: eng}

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var err error
	switch path {
	case "/healthz":
		err = h.health(c)
	default:
		err = h.evaluateLogin(c)
	}
	require.NoError(t, err)
	return rec
}

func TestEvaluateLoginEndpoint(t *testing.T) {
	eng := &stubEngine{resp: &model.Response{
		Decision:       model.ActionAllow,
		Confidence:     0.93,
		Explanation:    "This login was assessed as low risk.",
		EscalationFlag: false,
		AuditID:        "entry-1",
	}}

	rec := invoke(t, eng, http.MethodPost, "/v1/evaluate-login", `{"login_event":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The external surface is exactly the five response fields.
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 5)
	assert.Equal(t, "ALLOW", body["decision"])
	assert.Equal(t, "entry-1", body["audit_id"])
}

func TestEvaluateLoginErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "validation errors are client errors",
			err:    common.NewError(common.CodeValidation, "login_event.user_id is required"),
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "policy violations are forbidden",
			err:    common.NewError(common.CodePolicyViolation, "action not permitted"),
			status: http.StatusForbidden,
			code:   "POLICY_VIOLATION",
		},
		{
			name:   "agent errors are server errors",
			err:    common.NewError(common.CodeAgent, "evaluator failed: network"),
			status: http.StatusInternalServerError,
			code:   "AGENT_ERROR",
		},
		{
			name:   "unclassified errors stay opaque",
			err:    assert.AnError,
			status: http.StatusInternalServerError,
			code:   "AGENT_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := invoke(t, &stubEngine{err: tt.err}, http.MethodPost, "/v1/evaluate-login", `{"login_event":{}}`)
			assert.Equal(t, tt.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestEvaluateLoginMalformedBody(t *testing.T) {
	rec := invoke(t, &stubEngine{}, http.MethodPost, "/v1/evaluate-login", `{"login_event":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
}

func TestHealthEndpoint(t *testing.T) {
	rec := invoke(t, &stubEngine{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body healthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "heuristic", body.RiskMode)
	assert.Equal(t, "builtin-1", body.PolicyVersion)
}
