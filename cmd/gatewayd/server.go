package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	authcore "github.com/securepay/authcore"
)

const identityKey = "authcore.identity"

type server struct {
	core *authcore.Core
}

func newRouter(core *authcore.Core) *gin.Engine {
	s := &server{core: core}

	r := gin.New()
	r.Use(gin.Recovery(), secureHeaders)

	// Liveness is exempt from throttling and authentication.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth", s.throttle)
	{
		auth.POST("/register", s.handleRegister)
		auth.POST("/login", s.handleLogin)
		auth.POST("/refresh", s.handleRefresh)
	}

	protected := r.Group("/", s.authorize)
	{
		protected.POST("/auth/logout", s.handleLogout)
		protected.POST("/auth/mfa/setup", s.handleMFASetup)
		protected.POST("/auth/mfa/activate", s.handleMFAActivate)
		protected.POST("/auth/mfa/disable", s.handleMFADisable)
		protected.GET("/profile", s.handleProfile)
	}

	return r
}

// secureHeaders attaches the standard security headers to every response,
// the health endpoint included.
func secureHeaders(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	h.Set("Content-Security-Policy", "default-src 'self'")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
	c.Next()
}

// throttle applies both rate windows before credential handlers run.
func (s *server) throttle(c *gin.Context) {
	st, err := s.core.Gate().Throttle(c.Request.Context(), authcore.GateRequest{
		IP:            c.ClientIP(),
		Path:          c.Request.URL.Path,
		Method:        c.Request.Method,
		CorrelationID: c.GetHeader("X-Request-ID"),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	writeGateHeaders(c, st)
	c.Next()
}

// authorize applies rate windows and bearer validation, then attaches the
// identity for downstream handlers.
func (s *server) authorize(c *gin.Context) {
	st, err := s.core.Gate().Authorize(c.Request.Context(), authcore.GateRequest{
		IP:            c.ClientIP(),
		Path:          c.Request.URL.Path,
		Method:        c.Request.Method,
		BearerToken:   bearerToken(c.GetHeader("Authorization")),
		CorrelationID: c.GetHeader("X-Request-ID"),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	writeGateHeaders(c, st)
	c.Set(identityKey, st.Identity)
	c.Next()
}

func identity(c *gin.Context) *authcore.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*authcore.Identity)
	return id
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := s.core.Guard().Register(c.Request.Context(), authcore.RegisterInput{
		Identifier:    req.Email,
		Password:      req.Password,
		IP:            c.ClientIP(),
		CorrelationID: c.Writer.Header().Get("X-Request-ID"),
	})
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":    res.AccountID,
		"session_id": res.SessionID,
		"tokens":     res.Tokens,
	})
}

type loginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	MFACode    string `json:"mfa_code"`
	BackupCode string `json:"backup_code"`
}

func (s *server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := s.core.Guard().Login(c.Request.Context(), authcore.LoginInput{
		Identifier:    req.Email,
		Password:      req.Password,
		MFACode:       req.MFACode,
		BackupCode:    req.BackupCode,
		IP:            c.ClientIP(),
		CorrelationID: c.Writer.Header().Get("X-Request-ID"),
	})
	if err != nil {
		abortWith(c, err)
		return
	}

	if res.MFARequired {
		c.JSON(http.StatusOK, gin.H{"mfa_required": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    res.AccountID,
		"session_id": res.SessionID,
		"tokens":     res.Tokens,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	pair, err := s.core.Guard().Refresh(c.Request.Context(), authcore.RefreshInput{
		RefreshToken:  req.RefreshToken,
		IP:            c.ClientIP(),
		CorrelationID: c.Writer.Header().Get("X-Request-ID"),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

func (s *server) handleLogout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)

	id := identity(c)
	err := s.core.Guard().Logout(c.Request.Context(), id.UserID, req.SessionID, c.ClientIP(), id.CorrelationID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (s *server) handleMFASetup(c *gin.Context) {
	id := identity(c)
	setup, err := s.core.Guard().SetupMFA(c.Request.Context(), id.UserID, c.ClientIP(), id.CorrelationID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":           setup.Secret,
		"provisioning_uri": setup.ProvisioningURI,
		"backup_codes":     setup.BackupCodes,
	})
}

type mfaActivateRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *server) handleMFAActivate(c *gin.Context) {
	var req mfaActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id := identity(c)
	if err := s.core.Guard().ActivateMFA(c.Request.Context(), id.UserID, req.Code, c.ClientIP(), id.CorrelationID); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "mfa enabled"})
}

func (s *server) handleMFADisable(c *gin.Context) {
	id := identity(c)
	if err := s.core.Guard().DisableMFA(c.Request.Context(), id.UserID, c.ClientIP(), id.CorrelationID); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "mfa disabled"})
}

func (s *server) handleProfile(c *gin.Context) {
	id := identity(c)
	c.JSON(http.StatusOK, gin.H{
		"user_id": id.UserID,
		"role":    id.Role,
	})
}

// abortWith maps library errors onto HTTP statuses. Credential-shaped
// failures stay deliberately generic.
func abortWith(c *gin.Context, err error) {
	var rle *authcore.RateLimitError
	if errors.As(err, &rle) {
		c.Header("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrInvalidMFACode),
		errors.Is(err, authcore.ErrInvalidBackupCode):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, authcore.ErrInvalidToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	case errors.Is(err, authcore.ErrAccountLocked):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account temporarily locked"})
	case errors.Is(err, authcore.ErrAccountDisabled):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
	case errors.Is(err, authcore.ErrAccountExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "account already exists"})
	case errors.Is(err, authcore.ErrWeakPassword):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, authcore.ErrMFAAlreadyEnabled),
		errors.Is(err, authcore.ErrMFANotConfigured):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, authcore.ErrBackendUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func writeGateHeaders(c *gin.Context, st *authcore.RequestState) {
	c.Header("X-Request-ID", st.CorrelationID)
	if limit, ok := st.RateLimits["minute"]; ok {
		c.Header("X-RateLimit-Limit-Minute", strconv.Itoa(limit))
	}
	if remaining, ok := st.RateRemaining["minute"]; ok {
		c.Header("X-RateLimit-Remaining-Minute", strconv.Itoa(remaining))
	}
	if limit, ok := st.RateLimits["hour"]; ok {
		c.Header("X-RateLimit-Limit-Hour", strconv.Itoa(limit))
	}
	if remaining, ok := st.RateRemaining["hour"]; ok {
		c.Header("X-RateLimit-Remaining-Hour", strconv.Itoa(remaining))
	}
}

func bearerToken(value string) string {
	const prefix = "Bearer "
	if len(value) <= len(prefix) || value[:len(prefix)] != prefix {
		return ""
	}
	return value[len(prefix):]
}
