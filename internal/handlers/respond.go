package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/jwebster45206/closed-ai/pkg/chat"
)

// respondWithError aborts the request with a {error:{msg}} body.
func respondWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, chat.ErrorResponse{Error: chat.ErrorBody{Msg: msg}})
}
