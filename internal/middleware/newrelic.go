package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the transaction started by nrgin with the request
// id and requester, and reports handler errors and 5xx responses.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		txn.AddAttribute("request_id", c.GetString(RequestIDKey))

		c.Next()

		if claims, ok := CurrentUser(c); ok {
			txn.AddAttribute("user_id", claims.Subject)
		}
		if route := c.FullPath(); route != "" {
			txn.SetName(c.Request.Method + " " + route)
		}
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
