package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// sessionTTL matches the cookie Max-Age: 24 hours.
const sessionTTL = 24 * time.Hour

const sessionCookie = "admin_session"

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func newSessionToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// credentialsMatch compares in constant time to prevent timing attacks.
func (h *Handler) credentialsMatch(user, pass string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(h.cfg.Admin.Username))
	passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(h.cfg.Admin.Password))
	return userMatch&passMatch == 1
}

// Login issues a session cookie for valid admin credentials.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if !h.credentialsMatch(req.Username, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token := newSessionToken()
	expiresAt := time.Now().Add(sessionTTL).Unix()
	if err := h.repo.Sessions().Save(c.Request.Context(), token, expiresAt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, int(sessionTTL.Seconds()), "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Logout deletes the session both server- and client-side.
func (h *Handler) Logout(c *gin.Context) {
	if token, err := c.Cookie(sessionCookie); err == nil && token != "" {
		_ = h.repo.Sessions().Delete(c.Request.Context(), token)
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Check reports whether the caller holds a valid session.
func (h *Handler) Check(c *gin.Context) {
	if h.cfg.DisableAuth {
		c.JSON(http.StatusOK, gin.H{"authenticated": true})
		return
	}
	token, err := c.Cookie(sessionCookie)
	if err == nil && token != "" {
		if ok, _ := h.repo.Sessions().Valid(c.Request.Context(), token, time.Now().Unix()); ok {
			c.JSON(http.StatusOK, gin.H{"authenticated": true})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": false})
}

// AuthRequired guards admin routes with the session cookie, falling back to
// HTTP Basic.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cfg.DisableAuth {
			c.Next()
			return
		}

		if token, err := c.Cookie(sessionCookie); err == nil && token != "" {
			if ok, _ := h.repo.Sessions().Valid(c.Request.Context(), token, time.Now().Unix()); ok {
				c.Next()
				return
			}
		}

		if user, pass, ok := basicAuth(c.GetHeader("Authorization")); ok && h.credentialsMatch(user, pass) {
			c.Next()
			return
		}

		c.Header("WWW-Authenticate", `Basic realm="claude-gate admin"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func basicAuth(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	for i, b := range decoded {
		if b == ':' {
			return string(decoded[:i]), string(decoded[i+1:]), true
		}
	}
	return "", "", false
}
