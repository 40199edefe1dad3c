package app

import (
	"time"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/orchestrator"
	"github.com/yungbote/masteryloop-backend/internal/utils"
)

type Config struct {
	Mode string
	Port string

	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	KnowledgeGraphPath string
	Orchestrator       orchestrator.Config
}

func LoadConfig(log *logger.Logger) Config {
	mode := utils.GetEnv("APP_MODE", "development", log)
	port := utils.GetEnv("PORT", "8080", log)

	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTLSeconds := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTLSeconds := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)

	graphPath := utils.GetEnv("KNOWLEDGE_GRAPH_PATH", "data/knowledge_graph.yaml", log)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.MaxTurnSteps = utils.GetEnvAsInt("MAX_TURN_STEPS", orchCfg.MaxTurnSteps, log)
	timeoutSeconds := utils.GetEnvAsInt("COLLABORATOR_TIMEOUT_SECONDS", int(orchCfg.CollaboratorTimeout/time.Second), log)
	orchCfg.CollaboratorTimeout = time.Duration(timeoutSeconds) * time.Second
	orchCfg.DiagnosticProbeCap = utils.GetEnvAsInt("DIAGNOSTIC_PROBE_CAP", orchCfg.DiagnosticProbeCap, log)

	return Config{
		Mode:               mode,
		Port:               port,
		JWTSecretKey:       jwtSecretKey,
		AccessTokenTTL:     time.Duration(accessTokenTTLSeconds) * time.Second,
		RefreshTokenTTL:    time.Duration(refreshTokenTTLSeconds) * time.Second,
		KnowledgeGraphPath: graphPath,
		Orchestrator:       orchCfg,
	}
}
