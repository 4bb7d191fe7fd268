package server

import (
	"github.com/gin-gonic/gin"
)

// Stable error kinds of the HTTP contract. Clients match on these strings.
const (
	KindMissingParams      = "missing_params"
	KindInvalidParams      = "invalid_params"
	KindInvalidContentType = "invalid_content_type"
	KindInternalError      = "internal_error"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// WriteError writes the error body and aborts the handler chain.
func WriteError(c *gin.Context, status int, kind, value string) {
	c.AbortWithStatusJSON(status, APIError{Kind: kind, Value: value})
}
