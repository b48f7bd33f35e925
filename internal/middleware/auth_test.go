package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testSecret = "unit-test-secret"

func mintToken(t *testing.T, secret string, claims map[string]interface{}) string {
	t.Helper()
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	hj, _ := json.Marshal(header)
	pj, _ := json.Marshal(claims)
	h64 := base64.RawURLEncoding.EncodeToString(hj)
	p64 := base64.RawURLEncoding.EncodeToString(pj)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(h64 + "." + p64))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return h64 + "." + p64 + "." + sig
}

func TestVerifyHS256Valid(t *testing.T) {
	token := mintToken(t, testSecret, map[string]interface{}{
		"sub":  "agent-1",
		"role": "agent",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	id, err := VerifyHS256(token, testSecret, time.Now())
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if id.Subject != "agent-1" || id.Role != "agent" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerifyHS256BadSignature(t *testing.T) {
	token := mintToken(t, "wrong-secret", map[string]interface{}{"sub": "agent-1"})
	if _, err := VerifyHS256(token, testSecret, time.Now()); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifyHS256Expired(t *testing.T) {
	token := mintToken(t, testSecret, map[string]interface{}{
		"sub": "agent-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	if _, err := VerifyHS256(token, testSecret, time.Now()); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestVerifyHS256MissingSub(t *testing.T) {
	token := mintToken(t, testSecret, map[string]interface{}{"role": "agent"})
	if _, err := VerifyHS256(token, testSecret, time.Now()); err == nil {
		t.Fatal("expected missing sub error")
	}
}

func TestVerifyHS256RejectsOtherAlg(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"agent-1"}`))
	if _, err := VerifyHS256(header+"."+payload+".", testSecret, time.Now()); err == nil {
		t.Fatal("expected unsupported alg error")
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(testSecret))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("subject")})
	})

	// no token
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	// garbage token
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", w.Code)
	}

	// valid token
	token := mintToken(t, testSecret, map[string]interface{}{
		"sub": "agent-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d: %s", w.Code, w.Body.String())
	}
}
