package response

import (
	"github.com/gin-gonic/gin"
)

// Response is the uniform API envelope shared with the portal clients.
// Every endpoint answers with {success, data?, message?, error?} so callers
// never have to duck-type partial payloads.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody represents a structured error response.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMessage sends a successful response with a human-readable note.
func SuccessWithMessage(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: GetMessage(code)},
	})
}

// FailWithDetails sends an error response with field-level validation details.
func FailWithDetails(c *gin.Context, statusCode int, code ErrCode, details map[string]string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: GetMessage(code), Details: details},
	})
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: GetMessage(code)},
	})
}
