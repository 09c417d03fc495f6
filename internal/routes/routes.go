package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signupd/internal/handlers"
	"signupd/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	parse middleware.ParseTokenFunc,
	signupHandler *handlers.SignupHandler,
	verifyHandler *handlers.VerifyHandler,
) *gin.Engine {

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ---- public
	r.POST("/signup/session", signupHandler.StartSession)

	// ---- session-scoped (bearer token)
	r.Use(middleware.SessionAuthMiddleware(parse))

	r.GET("/signup/state", signupHandler.GetState)
	r.GET("/signup/attempts", signupHandler.GetAttempts)
	r.DELETE("/signup/session", signupHandler.EndSession)

	verify := r.Group("/verify")
	{
		verify.POST("/email/send", verifyHandler.SendEmailCode)
		verify.POST("/email", verifyHandler.VerifyEmailCode)
		verify.POST("/phone/send", verifyHandler.SendPhoneCode)
		verify.POST("/phone", verifyHandler.VerifyPhoneCode)
		verify.PUT("/input", verifyHandler.SetCodeInput)
		verify.PUT("/dialog", verifyHandler.SetDialogOpen)
		verify.POST("/reset", verifyHandler.Reset)
	}

	return r
}
