package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/learnhub/internal/backend/local"
	"github.com/yungbote/learnhub/internal/pkg/logger"
)

type Repos = local.Repos

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return local.NewRepos(db, log)
}
