package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"signupd/internal/services"
)

type SignupHandler struct {
	Sessions *services.SessionService
	Audit    *services.AuditService
}

func NewSignupHandler(sessions *services.SessionService, audit *services.AuditService) *SignupHandler {
	return &SignupHandler{Sessions: sessions, Audit: audit}
}

// @Summary      Start a signup session
// @Description  Creates a signup session with its verification controller and returns a bearer token for the follow-up calls
// @Tags         Signup
// @Accept       json
// @Produce      json
// @Param        session  body      object  true  "tenant and email"
// @Success      200      {object}  map[string]interface{}
// @Failure      400      {object}  map[string]string
// @Router       /signup/session [post]
func (h *SignupHandler) StartSession(c *gin.Context) {
	var req struct {
		Tenant string `json:"tenant" binding:"required"`
		Email  string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, token, err := h.Sessions.Start(strings.TrimSpace(req.Tenant), strings.TrimSpace(req.Email))
	if err != nil {
		log.Printf("[signup][start] failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start signup session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID,
		"token":      token,
		"expires_at": sess.ExpiresAt,
	})
}

// @Summary      Session state
// @Tags         Signup
// @Produce      json
// @Success      200  {object}  models.SessionState
// @Router       /signup/state [get]
func (h *SignupHandler) GetState(c *gin.Context) {
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionState(sess))
}

// @Summary      Verification attempt history
// @Description  Recorded code submissions for this session, oldest first. Requires the attempt audit store.
// @Tags         Signup
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /signup/attempts [get]
func (h *SignupHandler) GetAttempts(c *gin.Context) {
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	if h.Audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Attempt audit is not enabled"})
		return
	}
	attempts, err := h.Audit.History(sess.ID)
	if err != nil {
		log.Printf("[signup][attempts] failed: session=%s err=%v", sess.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load attempts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

// @Summary      Abandon the signup session
// @Tags         Signup
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /signup/session [delete]
func (h *SignupHandler) EndSession(c *gin.Context) {
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	h.Sessions.Remove(sess.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Session ended"})
}
