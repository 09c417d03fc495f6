package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"signupd/internal/backend"
	"signupd/internal/config"
	"signupd/internal/devbackend"
	"signupd/internal/handlers"
	"signupd/internal/phone"
	"signupd/internal/repositories"
	"signupd/internal/routes"
	"signupd/internal/services"
	"signupd/internal/verification"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	_ "signupd/docs"
)

func Run() {
	cfg := config.LoadConfig()

	// === DB (optional; audit and the dev backend need it) ===
	var db *sql.DB
	if cfg.Database.DSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Fatal("Failed to connect to database: ", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("Failed to close database: %v", err)
			}
		}()
	} else {
		log.Printf("[app] no database configured, attempt audit disabled")
	}

	// === Repos / audit ===
	var audit *services.AuditService
	if db != nil {
		audit = services.NewAuditService(repositories.NewVerificationAttemptRepository(db))
	}

	// === Verification backend ===
	var vb verification.Backend
	switch cfg.Backend.Mode {
	case "dev":
		if db == nil {
			log.Fatal("backend.mode=dev requires a database")
		}
		mailer := services.NewOTPMailer(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
		)
		vb = devbackend.NewService(
			repositories.NewEmailCodeRepository(db),
			mailer,
			cfg.Session.JWTSecret,
			cfg.Firebase.Audience,
		)
		log.Printf("[app] using in-process dev backend")
	default:
		vb = backend.NewClient(cfg.Backend.BaseURL)
	}

	// === Phone identity provider ===
	provider := phone.NewClient(cfg.Firebase.APIKey, cfg.Firebase.DryRun)
	provider.Audience = cfg.Firebase.Audience
	provider.DryRunSecret = cfg.Session.JWTSecret

	// === Services ===
	sessionService := services.NewSessionService(
		vb,
		phoneProvider{provider},
		audit,
		cfg.Session.JWTSecret,
		time.Duration(cfg.Session.TTLMinutes)*time.Minute,
	)
	defer sessionService.Stop()

	alertService := services.NewAlertService(cfg.Telegram.BotToken, cfg.Telegram.OpsChatID)

	// === Handlers ===
	signupHandler := handlers.NewSignupHandler(sessionService, audit)
	verifyHandler := handlers.NewVerifyHandler(sessionService, alertService)

	// === Gin ===
	router := gin.Default()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(router, sessionService.ParseTokenFields, signupHandler, verifyHandler)

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Server listening on %s", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}

// phoneProvider adapts *phone.Client to the controller's interface; the
// concrete RequestCode returns *phone.Session.
type phoneProvider struct {
	c *phone.Client
}

func (p phoneProvider) RequestCode(ctx context.Context, fullPhone string) (verification.PhoneSession, error) {
	return p.c.RequestCode(ctx, fullPhone)
}

func (p phoneProvider) Teardown() { p.c.Teardown() }

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
