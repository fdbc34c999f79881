// Package response renders the JSON envelope every BizAtlas endpoint
// returns: {success, data|error, timestamp}.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/BizAtlas/pkg/errors"
)

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Envelope wraps every JSON response.
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Now is the envelope clock.
var Now = func() time.Time { return time.Now().UTC() }

// OK writes a success envelope.
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data, Timestamp: Now()})
}

// Fail records err on the context for the request logger and writes the
// error envelope with the status mapped from its code.  Errors that carry
// no AppError are reported as COMMON_001 without their text; server-side
// details are never echoed to the client.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(errors.HTTPStatusOf(err), Envelope{Error: Body(err), Timestamp: Now()})
}

// Body builds the error half of the envelope for err.
func Body(err error) *ErrorBody {
	var ae *errors.AppError
	if !errors.As(err, &ae) {
		return &ErrorBody{
			Code:    errors.ErrCodeInternal.String(),
			Message: errors.DefaultMessageForCode(errors.ErrCodeInternal),
		}
	}
	body := &ErrorBody{Code: ae.Code.String(), Message: ae.Message}
	if body.Message == "" {
		body.Message = errors.DefaultMessageForCode(ae.Code)
	}
	if errors.HTTPStatusForCode(ae.Code) < http.StatusInternalServerError {
		body.Detail = ae.Detail
	}
	return body
}

//Personal.AI order the ending
