// Package response writes the JSON envelope every admin endpoint answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope. Failed operations may still carry Data,
// e.g. the partial result of a publish that reached some channels.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Fail sends status with an error and optional data.
func Fail(c *gin.Context, status int, data interface{}, err string) {
	c.JSON(status, Body{Success: false, Data: data, Error: err})
}

// BadRequest sends 400.
func BadRequest(c *gin.Context, err string) { Fail(c, http.StatusBadRequest, nil, err) }

// NotFound sends 404.
func NotFound(c *gin.Context, err string) { Fail(c, http.StatusNotFound, nil, err) }

// Conflict sends 409.
func Conflict(c *gin.Context, err string) { Fail(c, http.StatusConflict, nil, err) }

// Unprocessable sends 422 with the failed operation's result.
func Unprocessable(c *gin.Context, data interface{}, err string) {
	Fail(c, http.StatusUnprocessableEntity, data, err)
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) { Fail(c, http.StatusServiceUnavailable, nil, err) }

// Internal sends 500.
func Internal(c *gin.Context, err string) { Fail(c, http.StatusInternalServerError, nil, err) }
