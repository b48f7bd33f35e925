package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Identity is the verified caller extracted from a bearer token.
type Identity struct {
	Subject string
	Role    string
}

// VerifyHS256 verifies an HS256 JWT and returns the caller identity.
// It performs minimal validation:
// - signature (HS256) using the configured secret
// - exp/nbf/iat (if present)
// - sub and role claims
func VerifyHS256(token, secret string, now time.Time) (*Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("invalid token format")
	}
	headerB64, payloadB64, sigB64 := parts[0], parts[1], parts[2]

	headerJSON, err := base64.RawURLEncoding.DecodeString(headerB64)
	if err != nil {
		return nil, errors.New("invalid header encoding")
	}
	var header map[string]interface{}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, errors.New("invalid header json")
	}
	if alg, _ := header["alg"].(string); alg != "" && alg != "HS256" {
		return nil, errors.New("unsupported alg")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(headerB64 + "." + payloadB64))
	expected := mac.Sum(nil)
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, errors.New("invalid signature encoding")
	}
	if !hmac.Equal(sig, expected) {
		return nil, errors.New("invalid signature")
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, errors.New("invalid payload encoding")
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, errors.New("invalid payload json")
	}

	nowSec := now.Unix()
	if sec, ok := numClaim(payload, "nbf"); ok && nowSec < sec {
		return nil, errors.New("token not yet valid")
	}
	if sec, ok := numClaim(payload, "iat"); ok && nowSec < sec {
		return nil, errors.New("token issued in the future")
	}
	if sec, ok := numClaim(payload, "exp"); ok && nowSec >= sec {
		return nil, errors.New("token expired")
	}

	id := &Identity{}
	if sub, _ := payload["sub"].(string); sub != "" {
		id.Subject = sub
	}
	if role, _ := payload["role"].(string); role != "" {
		id.Role = role
	}
	if id.Subject == "" {
		return nil, errors.New("missing sub claim")
	}
	return id, nil
}

func numClaim(payload map[string]interface{}, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		sec, err := v.Int64()
		return sec, err == nil
	}
	return 0, false
}

// AuthMiddleware enforces Authorization: Bearer <jwt> on protected routes.
// Rejections happen before any state mutation; on success it injects
// "subject" and "role" into gin.Context for handlers.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "missing bearer token",
			})
			return
		}
		token := strings.TrimSpace(ah[len("Bearer "):])
		if token == "" || secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "invalid token or server misconfig",
			})
			return
		}

		id, err := VerifyHS256(token, secret, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": err.Error(),
			})
			return
		}

		c.Set("subject", id.Subject)
		c.Set("role", id.Role)
		c.Next()
	}
}
