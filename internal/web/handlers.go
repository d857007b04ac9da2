// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codebot/codebot/internal/auth"
	"github.com/codebot/codebot/internal/csrf"
	"github.com/codebot/codebot/internal/session"
	"github.com/codebot/codebot/pkg/errutil"
)

// Response messages.
const (
	MsgRegistered     = "registration successful"
	MsgLoggedIn       = "login successful"
	MsgLoggedOut      = "logout successful"
	MsgUnknownAction  = "unknown action"
	MsgBadRequest     = "invalid request body"
	MsgCSRFMismatch   = "invalid csrf token"
	MsgNotFound       = "not found"
	msgInternalFailed = "request failed"
)

// authRequest is the body of POST /api/auth, as JSON or form fields.
type authRequest struct {
	Action   string `json:"action" form:"action"`
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	FullName string `json:"full_name" form:"full_name"`
}

// authResponse is the body of every POST /api/auth reply.
type authResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	User      *auth.PublicUser `json:"user,omitempty"`
	CSRFToken string           `json:"csrf_token,omitempty"`
}

type statusResponse struct {
	Authenticated bool             `json:"authenticated"`
	User          *auth.PublicUser `json:"user,omitempty"`
	CSRFToken     string           `json:"csrf_token,omitempty"`
}

type permissionResponse struct {
	Capability string `json:"capability"`
	Granted    bool   `json:"granted"`
}

func failure(message string) authResponse {
	return authResponse{Success: false, Message: message}
}

// RegisterRoutes mounts the auth endpoints on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/auth", h.rateLimit())
	api.POST("", h.handleAction)
	api.GET("/status", h.handleStatus)
	api.GET("/permissions/:capability", h.handlePermission)
}

func (h *Handler) handleAction(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, failure(MsgBadRequest))
		return
	}

	switch req.Action {
	case "register":
		h.register(c, req)
	case "login":
		h.login(c, req)
	case "logout":
		h.logout(c)
	default:
		c.JSON(http.StatusBadRequest, failure(MsgUnknownAction))
	}
}

func (h *Handler) register(c *gin.Context, req authRequest) {
	user, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		h.writeError(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, authResponse{Success: true, Message: MsgRegistered, User: user})
}

func (h *Handler) login(c *gin.Context, req authRequest) {
	ctx := c.Request.Context()

	login := req.Username
	if login == "" {
		login = req.Email
	}

	res, err := h.auth.Login(ctx, login, req.Password)
	if err != nil {
		h.writeError(c, "login", err)
		return
	}

	h.setSessionCookie(c, res.Token)

	// The token is bound now so the client can log out without a status call.
	token, err := h.csrf.Issue(ctx, res.Token)
	if err != nil {
		errutil.LogErrorContext(ctx, h.logger, "csrf issue after login failed", err,
			"user_id", res.User.ID)
		token = ""
	}

	c.JSON(http.StatusOK, authResponse{
		Success:   true,
		Message:   MsgLoggedIn,
		User:      res.User,
		CSRFToken: token,
	})
}

func (h *Handler) logout(c *gin.Context) {
	ctx := c.Request.Context()
	token := session.TokenFromRequest(c.Request, h.cfg.Cookie)

	if token != "" && h.cfg.CSRFRequired && h.auth.IsAuthenticated(ctx, token) {
		if !h.csrf.Verify(ctx, token, c.GetHeader(csrf.HeaderName)) {
			h.logger.WarnContext(ctx, "logout rejected: csrf mismatch",
				"request_id", c.GetString(requestIDKey))
			c.JSON(http.StatusForbidden, failure(MsgCSRFMismatch))
			return
		}
	}

	if err := h.auth.Logout(ctx, token); err != nil {
		h.writeError(c, "logout", err)
		return
	}

	session.ClearCookie(c.Writer, h.cfg.Cookie)
	c.JSON(http.StatusOK, authResponse{Success: true, Message: MsgLoggedOut})
}

func (h *Handler) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	token := session.TokenFromRequest(c.Request, h.cfg.Cookie)
	if token == "" {
		c.JSON(http.StatusOK, statusResponse{})
		return
	}

	user, ok, err := h.auth.CurrentUser(ctx, token)
	if err != nil {
		h.writeError(c, "status", err)
		return
	}
	if !ok {
		session.ClearCookie(c.Writer, h.cfg.Cookie)
		c.JSON(http.StatusOK, statusResponse{})
		return
	}

	csrfToken, err := h.csrf.Issue(ctx, token)
	if err != nil {
		h.writeError(c, "status", err)
		return
	}

	h.setSessionCookie(c, token)
	c.JSON(http.StatusOK, statusResponse{Authenticated: true, User: user, CSRFToken: csrfToken})
}

func (h *Handler) handlePermission(c *gin.Context) {
	capability := c.Param("capability")
	token := session.TokenFromRequest(c.Request, h.cfg.Cookie)

	granted := h.auth.HasPermission(c.Request.Context(), token, capability)
	if granted {
		h.setSessionCookie(c, token)
	}
	c.JSON(http.StatusOK, permissionResponse{Capability: capability, Granted: granted})
}

// setSessionCookie (re)issues the session cookie. It is sent again after
// every request that slid the session so the browser copy expires with it.
func (h *Handler) setSessionCookie(c *gin.Context, token string) {
	session.SetCookie(c.Writer, token, h.cfg.CookieMaxAge, h.cfg.Cookie)
}

// writeError maps a classified auth error onto a status code and a
// client-safe body. Storage failures are logged in full and collapsed.
func (h *Handler) writeError(c *gin.Context, operation string, err error) {
	ctx := c.Request.Context()

	status := http.StatusInternalServerError
	switch auth.KindOf(err) {
	case auth.KindValidation:
		status = http.StatusBadRequest
	case auth.KindConflict:
		status = http.StatusConflict
	case auth.KindInvalidCredentials:
		status = http.StatusUnauthorized
	case auth.KindRateLimited:
		status = http.StatusTooManyRequests
	default:
		errutil.LogErrorContext(ctx, h.logger, msgInternalFailed, err,
			"operation", operation,
			"request_id", c.GetString(requestIDKey))
	}

	c.JSON(status, failure(auth.PublicMessage(err)))
}
