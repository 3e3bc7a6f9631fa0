package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyshape/internal/interfaces/http/middleware"
	"github.com/turtacn/keyshape/pkg/errors"
	"github.com/turtacn/keyshape/pkg/types/common"
)

// respondOK writes data inside the success envelope.
func respondOK[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, common.NewSuccessResponse(data, middleware.GetRequestID(c)))
}

func respondCreated[T any](c *gin.Context, data T) {
	c.JSON(http.StatusCreated, common.NewSuccessResponse(data, middleware.GetRequestID(c)))
}

// respondError maps err to its HTTP status and writes the error envelope.
// Server-side failures are masked; the cause is kept on the gin context for
// the request logger.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatusForCode(code)

	detail := common.ErrorDetail{Code: code.String(), Message: errors.DefaultMessageForCode(code)}
	var ae *errors.AppError
	if status < http.StatusInternalServerError && errors.As(err, &ae) {
		detail.Message = ae.Message
		detail.Detail = ae.Detail
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, common.NewErrorResponse(detail, middleware.GetRequestID(c)))
}

// bindJSON decodes the request body into dst and reports a bad request on
// failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed request body").WithDetail(err.Error()))
		return false
	}
	return true
}
