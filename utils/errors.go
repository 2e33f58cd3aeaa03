package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the stable error shape returned to clients. Internal
// errors and provider payloads never leak into Detail.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, detail string) {
	c.JSON(statusCode, ErrorResponse{Detail: detail})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, detail string) {
	RespondWithError(c, http.StatusBadRequest, detail)
}

// RespondWithUnauthorized sends a 401 Unauthorized error
func RespondWithUnauthorized(c *gin.Context, detail string) {
	RespondWithError(c, http.StatusUnauthorized, detail)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, detail string) {
	RespondWithError(c, http.StatusNotFound, detail)
}

// RespondWithConflict sends a 409 Conflict error
func RespondWithConflict(c *gin.Context, detail string) {
	RespondWithError(c, http.StatusConflict, detail)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, detail string) {
	RespondWithError(c, http.StatusInternalServerError, detail)
}
