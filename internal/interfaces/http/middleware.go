package httpinterface

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/core/domain"
)

const (
	// ActorHeader carries the id of the chat user on whose behalf the bot is
	// calling.
	ActorHeader = "X-Actor-Id"

	actorKey = "actor"
)

// requireToken rejects requests without a valid HS256 bearer token.
func requireToken(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if header == "" || tokenString == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "missing bearer token",
			})
			return
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			log.WithError(err).Debug("rejected request with invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "invalid bearer token",
			})
			return
		}
		c.Next()
	}
}

// withActor stores the calling chat user in the context. Every request
// acting on a ticket must set it.
func withActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" && c.Request.Method != http.MethodGet {
			abortWithError(c, fmt.Errorf("%w: %s", domain.ErrValidation, errMissingActor))
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

type adminChecker interface {
	IsAdmin(actor string) bool
}

func requireAdmin(svc adminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.IsAdmin(actorOf(c)) {
			abortWithError(c, domain.ErrNotAdmin)
			return
		}
		c.Next()
	}
}

func actorOf(c *gin.Context) string {
	return c.GetString(actorKey)
}
