package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyshape/internal/infrastructure/auth"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
	"github.com/turtacn/keyshape/pkg/types/common"
)

// ContextKeySubject is the gin key holding the authenticated subject.
const ContextKeySubject = "auth_subject"

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Claims, error)
}

// PermissionFunc names the permissions a matched route requires.  The route
// is gin's template, e.g. /api/v1/libraries/:name.
type PermissionFunc func(method, route string) []auth.Permission

// Authenticate rejects requests without a valid bearer token and stores the
// verified claims in the request context.
func Authenticate(v TokenVerifier, logger logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, errors.New(errors.ErrCodeUnauthorized, "missing bearer token"))
			return
		}
		claims, err := v.Verify(c.Request.Context(), raw)
		if err != nil {
			logger.Warn("token rejected",
				logging.String("request_id", GetRequestID(c)),
				logging.String("path", c.Request.URL.Path),
				logging.Err(err))
			abortWithError(c, err)
			return
		}
		c.Set(ContextKeySubject, claims.Subject)
		c.Request = c.Request.WithContext(auth.NewContext(c.Request.Context(), claims))
		c.Next()
	}
}

// Authorize enforces the permissions perms assigns to the matched route.
// Must run after Authenticate.
func Authorize(e *auth.Enforcer, perms PermissionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := auth.FromContext(c.Request.Context())
		if err := e.Enforce(claims, perms(c.Request.Method, c.FullPath())...); err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortWithError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeUnauthorized
	}
	status := errors.HTTPStatusForCode(code)
	detail := common.ErrorDetail{Code: code.String(), Message: errors.DefaultMessageForCode(code)}
	var ae *errors.AppError
	if status < http.StatusInternalServerError && errors.As(err, &ae) {
		detail.Message = ae.Message
		detail.Detail = ae.Detail
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="keyshape"`)
	}
	c.AbortWithStatusJSON(status, common.NewErrorResponse(detail, GetRequestID(c)))
}
