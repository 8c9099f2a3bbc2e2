package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeVerifier struct{}

func (fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*fbauth.Token, error) {
	if idToken != "good" {
		return nil, errors.New("token has expired")
	}
	return &fbauth.Token{UID: "admin-1"}, nil
}

func serve(mw gin.HandlerFunc, header string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": UID(c)})
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	mw := AuthMiddleware(fakeVerifier{})

	w := serve(mw, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// No panic on short headers.
	w = serve(mw, "Bear")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(mw, "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid ID token")

	w = serve(mw, "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":"admin-1"}`, w.Body.String())
}

func TestServerSecretMiddleware(t *testing.T) {
	mw := ServerSecretMiddleware("s3cret")

	w := serve(mw, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Missing or invalid authorization header")

	w = serve(mw, "Basic s3cret")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = serve(mw, "Bearer wrong")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid server secret")

	w = serve(mw, "Bearer s3cret")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":""}`, w.Body.String())
}

func TestServerSecretMiddlewareWithoutSecret(t *testing.T) {
	w := serve(ServerSecretMiddleware(""), "Bearer anything")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
