package auth

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
)

// TokenKey is the gin context key holding the verified *fbauth.Token.
const TokenKey = "token"

// TokenVerifier is satisfied by *fbauth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// AuthMiddleware rejects requests without a valid Firebase ID token.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		idToken, ok := bearer(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is missing"})
			c.Abort()
			return
		}

		token, err := verifier.VerifyIDToken(c.Request.Context(), idToken)
		if err != nil {
			log.Printf("Failed to verify ID token: %v\n", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid ID token"})
			c.Abort()
			return
		}

		// Attach token to the context
		c.Set(TokenKey, token)

		c.Next()
	}
}

// UID returns the uid of the verified caller, or "" outside AuthMiddleware.
func UID(c *gin.Context) string {
	v, ok := c.Get(TokenKey)
	if !ok {
		return ""
	}
	if token, ok := v.(*fbauth.Token); ok && token != nil {
		return token.UID
	}
	return ""
}

// ServerSecretMiddleware guards the relay endpoints with a shared bearer
// secret. Clients of these endpoints treat every auth failure as a server
// error, so both cases answer 500.
func ServerSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided, ok := bearer(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Missing or invalid authorization header"})
			c.Abort()
			return
		}
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid server secret"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}
