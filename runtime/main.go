package main

import (
	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/scribeline/meter_api/middleware"
	"github.com/scribeline/meter_api/services"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.MonitoringService{},
		&services.RecordStoreService{},
		&services.RedisService{},
		&services.AuditDbService{},
		&services.MinIOService{},

		&services.RateLimitService{},
		&services.ModeService{},
		&services.EmailService{},
		&services.EntitlementService{},
		&services.EmailHistoryService{},
		&services.TempFileService{},
		&services.TransformService{},
		&services.MediaService{},
		&services.ScribeService{},

		&services.JWTService{},
		&middleware.AuthMiddleware{},
		&middleware.RateLimitMiddleware{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err)
		return
	}
}
