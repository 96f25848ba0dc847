package response

import "github.com/gin-gonic/gin"

type APIError struct {
	Code    uint32 `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, gin.H{"data": data})
}

func Error(c *gin.Context, status int, code uint32, message string) {
	Fail(c, status, APIError{Code: code, Message: message})
}

func Fail(c *gin.Context, status int, apiErr APIError) {
	c.AbortWithStatusJSON(status, gin.H{"error": apiErr})
}
