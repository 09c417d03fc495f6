package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signupd/internal/models"
	"signupd/internal/services"
)

func ctxString(c *gin.Context, key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// sessionFromCtx resolves the authenticated session or writes the error
// response itself.
func sessionFromCtx(c *gin.Context, sessions *services.SessionService) (*models.SignupSession, bool) {
	id, ok := ctxString(c, "session_id")
	if !ok || id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No session in request context"})
		return nil, false
	}
	sess, err := sessions.Get(id)
	if err != nil {
		status := http.StatusNotFound
		if err == services.ErrSessionExpired {
			status = http.StatusGone
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, false
	}
	return sess, true
}

func sessionState(sess *models.SignupSession) models.SessionState {
	return models.SessionState{
		ID:        sess.ID,
		Tenant:    sess.Tenant,
		Email:     sess.Controller.EmailState(),
		Phone:     sess.Controller.PhoneState(),
		Completed: sess.Controller.Completed(),
	}
}
