package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/pkg/config"
)

// Reasons an admin request is turned away, as passed to a RejectRecorder.
const (
	RejectMissingToken    = "missing_token"
	RejectMalformedHeader = "malformed_header"
	RejectInvalidToken    = "invalid_token"
	RejectRateLimited     = "rate_limited"
)

// adminTokenBytes is the entropy of a generated token before hex encoding.
const adminTokenBytes = 32

// RejectRecorder counts admin requests refused by the middleware in this
// package. A nil recorder is allowed.
type RejectRecorder interface {
	AdminRejected(reason string)
}

// reject aborts c with a JSON error body and reports reason to rec. Every
// refusal of the admin API goes through here so clients see one shape:
// {"error": reason, "message": message}.
func reject(c *gin.Context, rec RejectRecorder, status int, reason, message string) {
	if rec != nil {
		rec.AdminRejected(reason)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   reason,
		"message": message,
	})
}

// ResolveAdminToken returns the token configured in cfg, or a random one
// when cfg has none. generated reports which case applied.
func ResolveAdminToken(cfg *config.AdminConfig) (token string, generated bool, err error) {
	if t := strings.TrimSpace(cfg.Token); t != "" {
		return t, false, nil
	}
	buf := make([]byte, adminTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", false, err
	}
	return hex.EncodeToString(buf), true, nil
}

// bearerToken extracts the credential of an "Authorization: Bearer" header.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AdminAuthMiddleware guards the admin API with the bearer token of cfg.
// cfg.Token must be resolved, see ResolveAdminToken.
func AdminAuthMiddleware(cfg *config.AdminConfig, rec RejectRecorder, logger *zap.Logger) gin.HandlerFunc {
	want := []byte(cfg.Token)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			reject(c, rec, http.StatusUnauthorized, RejectMissingToken, "Authorization header required")
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			reject(c, rec, http.StatusUnauthorized, RejectMalformedHeader, "Expected \"Bearer <token>\"")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			logger.Warn("Rejected admin token",
				zap.String("client_ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path))
			reject(c, rec, http.StatusUnauthorized, RejectInvalidToken, "Invalid token")
			return
		}

		c.Next()
	}
}
