package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// action is one entry of a function's dispatch table.
type action struct {
	role    string
	limiter *RateLimiter
	run     func(ctx context.Context, p *auth.Principal, body []byte) (any, error)
}

type actions map[string]action

// function is a /functions/v1/<name> endpoint.
type function struct {
	actions actions
	// fallback names the action used when the body carries none.
	fallback string
	// hooks are unauthenticated entry points selected by ?action=.
	hooks map[string]gin.HandlerFunc
}

// typed binds an action to a handler taking a decoded, validated request.
func typed[T any](role string, fn func(ctx context.Context, p *auth.Principal, req *T) (any, error)) action {
	return action{
		role: role,
		run: func(ctx context.Context, p *auth.Principal, body []byte) (any, error) {
			req := new(T)
			if len(body) > 0 {
				if err := json.Unmarshal(body, req); err != nil {
					return nil, apperr.Invalid("invalid request body")
				}
			}
			if err := validate.Struct(req); err != nil {
				return nil, validationError(err)
			}
			return fn(ctx, p, req)
		},
	}
}

func (a action) limited(rl *RateLimiter) action {
	a.limiter = rl
	return a
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldName(fe)+" failed "+fe.Tag())
	}
	return apperr.Invalid("invalid request: " + strings.Join(msgs, ", "))
}

// fieldName drops the request struct name from the namespace.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

type envelope struct {
	Action string `json:"action"`
}

// dispatch authorizes the caller for the requested action and runs it. The
// caller is authenticated before anything in the body is acted on, so an
// unauthenticated request never reaches a store.
func (s *Server) dispatch(c *gin.Context) {
	fn, ok := s.functions[c.Param("function")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "function not found"})
		return
	}
	if hook, ok := fn.hooks[c.Query("action")]; ok {
		hook(c)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		s.fail(c, apperr.Invalid("unreadable request body"))
		return
	}
	var env envelope
	badBody := len(body) > 0 && json.Unmarshal(body, &env) != nil
	name := env.Action
	if name == "" {
		name = fn.fallback
	}

	act, known := fn.actions[name]
	role := models.RoleUser
	if known {
		role = act.role
	}

	ctx := c.Request.Context()
	p, err := s.gate.Authorize(ctx, auth.BearerToken(c.GetHeader("Authorization")), role)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Set(ctxUserID, p.UserID)
	c.Set(ctxAction, name)

	switch {
	case badBody:
		s.fail(c, apperr.Invalid("invalid request body"))
		return
	case !known:
		s.fail(c, apperr.ErrUnknownAction)
		return
	}

	if !s.limiter.Allow(p.UserID) || (act.limiter != nil && !act.limiter.Allow(p.UserID)) {
		s.fail(c, apperr.ErrRateLimited)
		return
	}

	out, err := act.run(ctx, p, body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// fail writes err as {"error": msg} with its mapped status.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	ev := s.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Err(err).
		Str("function", c.Param("function")).
		Str("action", c.GetString(ctxAction)).
		Str("code", apperr.Code(err)).
		Int("status", status).
		Msg("request failed")

	c.AbortWithStatusJSON(status, gin.H{"error": publicMessage(err)})
}

// publicMessage hides the detail of errors outside the taxonomy. Upstream
// errors keep their cause so the panel's reply reaches the dashboard.
func publicMessage(err error) string {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return "internal server error"
	}
	if ae.Kind == apperr.KindUpstream {
		return ae.Error()
	}
	return ae.Msg
}

func success() gin.H { return gin.H{"success": true} }
