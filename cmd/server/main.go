package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vidahome/homecare-api/pkg/auth"
	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/handlers"
)

func main() {
	// Load .env if it exists
	// Try root and parent directories for flexibility
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "homecare-api").Logger()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	db := database.InitDB()
	_ = auth.EnsureAdminExists(db)
	h := handlers.New(db, logger)

	r := handlers.NewRouter(h)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	logger.Info().Str("port", port).Msg("server starting")
	if err := r.Run(":" + port); err != nil {
		logger.Fatal().Err(err).Msg("could not run server")
	}
}
