package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/scribeline/meter_api/shared"
)

type authProvider interface {
	RequiredAuth() fiber.Handler
}

type ipLimiter interface {
	IPRateLimit() fiber.Handler
	GenerateRateLimit() fiber.Handler
}

type HttpService struct {
	context.DefaultService

	rateLimitSvc  *RateLimitService
	scribeSvc     *ScribeService
	entSvc        *EntitlementService
	historySvc    *EmailHistoryService
	mediaSvc      *MediaService
	auditSvc      *AuditDbService
	monitoringSvc *MonitoringService

	auth    authProvider
	limiter ipLimiter

	port   int
	server *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.scribeSvc = svc.Service(SCRIBE_SVC).(*ScribeService)
	svc.entSvc = svc.Service(ENTITLEMENT_SVC).(*EntitlementService)
	svc.historySvc = svc.Service(EMAIL_HISTORY_SVC).(*EmailHistoryService)
	svc.mediaSvc = svc.Service(MEDIA_SVC).(*MediaService)
	svc.auditSvc = svc.Service(AUDIT_DB_SVC).(*AuditDbService)
	svc.monitoringSvc = svc.Service(MONITORING_SVC).(*MonitoringService)

	svc.auth = svc.Service("auth").(authProvider)
	svc.limiter = svc.Service("rate_limit").(ipLimiter)

	app := fiber.New(fiber.Config{
		JSONEncoder: shared.JSONMarshal,
		JSONDecoder: shared.JSONUnmarshal,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			svc.HandleError(c, err)
			return nil
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
	}))
	app.Use(MonitoringMiddleware(svc.monitoringSvc))

	app.Get("/ping", svc.ping)

	v1 := app.Group("/api/v1", svc.limiter.IPRateLimit())

	v1.Get("/ping", svc.ping)
	v1.Get("/usage/:userID", svc.getUsage)

	v1.Post("/generate", svc.limiter.GenerateRateLimit(), svc.generate)
	v1.Post("/insert/arm", svc.armInsert)
	v1.Post("/insert/message", svc.limiter.GenerateRateLimit(), svc.insertMessage)
	v1.Post("/resend", svc.resend)
	v1.Post("/media/extract_audio", svc.limiter.GenerateRateLimit(), svc.extractAudio)

	v1.Post("/email/register", svc.registerEmail)
	v1.Post("/email/confirm", svc.confirmEmail)

	admin := v1.Group("/admin", svc.auth.RequiredAuth())
	admin.Post("/entitlement/paid", svc.setPaid)
	admin.Post("/entitlement/free", svc.setFree)
	admin.Get("/entitlement/:userID", svc.getEntitlement)
	admin.Get("/guild/:guildID/plan", svc.getGuildPlan)
	admin.Put("/guild/:guildID/plan", svc.setGuildPlan)
	admin.Post("/usage/:userID/reset", svc.resetUsage)
	admin.Get("/usage/stats", svc.usageStats)

	app.Use(func(c *fiber.Ctx) error {
		return svc.HandleError(c, shared.NewNotFoundError(errors.New("page not found"), "Page not found"))
	})

	svc.server = app

	log.Info().Int("port", svc.port).Msg("HTTP server started")
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", "pong")
}

func (svc *HttpService) HandleError(c *fiber.Ctx, err error) bool {
	if err == nil {
		return false
	}

	if appErr, ok := shared.GetAppError(err); ok {
		_ = shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
		return true
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		_ = shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
		return true
	}

	_ = shared.ResponseInternalError(c, err)
	return true
}
