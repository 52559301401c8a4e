package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/rosterinvites/pkg/errors"
)

// Response defines the base API payload.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes list metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta writes a JSON success response including metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	appErr := resolve(err)
	c.JSON(statusOf(appErr), Response{
		Success: false,
		Error:   infoOf(appErr),
	})
}

// Partial writes a failure envelope that still carries the settled resource,
// used when the primary write committed but a follow-up step did not.
func Partial(c *gin.Context, data interface{}, err error) {
	appErr := resolve(err)
	c.JSON(statusOf(appErr), Response{
		Success: false,
		Data:    data,
		Error:   infoOf(appErr),
	})
}

func resolve(err error) *appErrors.AppError {
	if err == nil {
		err = appErrors.ErrInternalServer
	}
	return appErrors.FromError(err)
}

func statusOf(appErr *appErrors.AppError) int {
	if appErr.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return appErr.StatusCode
}

func infoOf(appErr *appErrors.AppError) *ErrorInfo {
	return &ErrorInfo{
		Code:    appErr.Code,
		Message: appErr.Message,
	}
}
