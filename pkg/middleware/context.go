package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
)

const (
	// HeaderConversationID is the header key for the conversation ID
	HeaderConversationID = "X-Conversation-ID"
	// HeaderCustomerID is the header key for the transport-authenticated customer ID
	HeaderCustomerID = "X-Customer-ID"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			// get request id from header
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			conversationID := req.Header.Get(HeaderConversationID)
			customerID := req.Header.Get(HeaderCustomerID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetConversationID(ctx, conversationID)
			ctx = context.SetCustomerID(ctx, customerID)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
