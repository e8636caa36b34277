package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(secret))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.GetUint64("userId"), "username": c.GetString("username")})
	})
	return r
}

func do(r *gin.Engine, target, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(testSecret)
	good, err := SignAccessToken([]byte(testSecret), 7, "alice", time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken() error = %v", err)
	}
	expired, _ := SignAccessToken([]byte(testSecret), 7, "alice", -time.Minute)
	foreign, _ := SignAccessToken([]byte("other"), 7, "alice", time.Minute)
	refresh, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: 7, Type: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name   string
		target string
		auth   string
		want   int
	}{
		{"bearer header", "/me", "Bearer " + good, http.StatusOK},
		{"lowercase bearer", "/me", "bearer " + good, http.StatusOK},
		{"query token", "/me?token=" + good, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"not bearer", "/me", "Basic abc", http.StatusUnauthorized},
		{"expired", "/me", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "/me", "Bearer " + foreign, http.StatusUnauthorized},
		{"refresh token", "/me", "Bearer " + refresh, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(r, tt.target, tt.auth); w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_SetsIdentity(t *testing.T) {
	r := newRouter(testSecret)
	tok, _ := SignAccessToken([]byte(testSecret), 42, "bob", time.Minute)
	w := do(r, "/me", "Bearer "+tok)
	if w.Body.String() != `{"userId":42,"username":"bob"}` {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	if w := do(newRouter(""), "/me", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d with auth disabled", w.Code)
	}
}
