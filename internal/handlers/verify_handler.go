package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"signupd/internal/models"
	"signupd/internal/services"
	"signupd/internal/verification"
)

// VerifyHandler wires the per-session verification controller to HTTP. It
// adds no verification semantics: every route body is bind, call the
// controller action, reflect the resulting state.
type VerifyHandler struct {
	Sessions *services.SessionService
	Alerts   *services.AlertService
}

func NewVerifyHandler(sessions *services.SessionService, alerts *services.AlertService) *VerifyHandler {
	return &VerifyHandler{Sessions: sessions, Alerts: alerts}
}

// @Summary      Send the email verification code
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.SessionState
// @Failure      400  {object}  map[string]string
// @Router       /verify/email/send [post]
func (h *VerifyHandler) SendEmailCode(c *gin.Context) {
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	err := sess.Controller.SendEmailCode(c.Request.Context(), sess.Email)
	h.respond(c, sess, err)
}

// @Summary      Verify the email code
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.SessionState
// @Failure      400  {object}  map[string]string
// @Router       /verify/email [post]
func (h *VerifyHandler) VerifyEmailCode(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	err := sess.Controller.VerifyEmailCode(c.Request.Context(), req.Code, sess.Email)
	h.respond(c, sess, err)
}

// @Summary      Send the phone verification code
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.SessionState
// @Failure      400  {object}  map[string]string
// @Router       /verify/phone/send [post]
func (h *VerifyHandler) SendPhoneCode(c *gin.Context) {
	var req struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	// Phone verification comes after email; flag out-of-order callers.
	if !sess.Controller.EmailState().Verified {
		c.JSON(http.StatusConflict, gin.H{"error": "Verify your email address first"})
		return
	}
	sess.Phone = req.Phone
	err := sess.Controller.SendPhoneCode(c.Request.Context(), req.Phone)
	h.respond(c, sess, err)
}

// @Summary      Verify the phone code
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.SessionState
// @Failure      400  {object}  map[string]string
// @Router       /verify/phone [post]
func (h *VerifyHandler) VerifyPhoneCode(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	err := sess.Controller.VerifyPhoneCode(c.Request.Context(), req.Code, sess.Email)
	if err == nil && sess.Controller.Completed() {
		h.Alerts.SignupVerifiedAlert(sess.Tenant, sess.Email)
	}
	h.respond(c, sess, err)
}

// @Summary      Update a code input field
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.SessionState
// @Router       /verify/input [put]
func (h *VerifyHandler) SetCodeInput(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Value   string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	switch verification.Channel(req.Channel) {
	case verification.ChannelEmail:
		sess.Controller.SetEmailCodeInput(req.Value)
	case verification.ChannelPhone:
		sess.Controller.SetPhoneCodeInput(req.Value)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown channel"})
		return
	}
	c.JSON(http.StatusOK, sessionState(sess))
}

// @Summary      Open or close a verification dialog
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.SessionState
// @Router       /verify/dialog [put]
func (h *VerifyHandler) SetDialogOpen(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Open    bool   `json:"open"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	switch verification.Channel(req.Channel) {
	case verification.ChannelEmail:
		sess.Controller.SetEmailDialogOpen(req.Open)
	case verification.ChannelPhone:
		sess.Controller.SetPhoneDialogOpen(req.Open)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown channel"})
		return
	}
	c.JSON(http.StatusOK, sessionState(sess))
}

// @Summary      Reset both verification channels
// @Tags         Verification
// @Produce      json
// @Success      200  {object}  models.SessionState
// @Router       /verify/reset [post]
func (h *VerifyHandler) Reset(c *gin.Context) {
	sess, ok := sessionFromCtx(c, h.Sessions)
	if !ok {
		return
	}
	sess.Controller.Reset()
	c.JSON(http.StatusOK, sessionState(sess))
}

// respond reflects the controller outcome. Channel errors ride along with
// the refreshed state so the client can render inline.
func (h *VerifyHandler) respond(c *gin.Context, sess *models.SignupSession, err error) {
	state := sessionState(sess)
	if err == nil {
		c.JSON(http.StatusOK, state)
		return
	}

	switch {
	case errors.Is(err, verification.ErrInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": state})
		return
	case errors.Is(err, verification.ErrDuplicate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "state": state})
		return
	case errors.Is(err, verification.ErrStale):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": state})
		return
	}

	var verr *verification.Error
	if errors.As(err, &verr) {
		if verr.Kind == verification.KindProviderConfig {
			h.Alerts.ProviderConfigAlert(sess.Tenant, verr.Message)
		}
		c.JSON(statusForKind(verr.Kind), gin.H{
			"error": verr.Message,
			"kind":  verr.Kind,
			"state": state,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed", "state": state})
}

func statusForKind(k verification.Kind) int {
	switch k {
	case verification.KindInvalidInput, verification.KindWrongCode:
		return http.StatusBadRequest
	case verification.KindExpiredCode:
		return http.StatusGone
	case verification.KindNoSession, verification.KindSessionMismatch:
		return http.StatusConflict
	case verification.KindProviderConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
