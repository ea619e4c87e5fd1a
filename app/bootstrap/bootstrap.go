package bootstrap

import (
	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/config"
	"github.com/fridahub/retrieval-go/internal/database"
	"github.com/fridahub/retrieval-go/internal/di"
	"github.com/fridahub/retrieval-go/internal/logger"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
}

// Init bootstraps configuration, logger, database connections and the
// dependency container shared by all commands.
func Init() (*App, error) {
	// Load dynamic configuration first: LoadConfig reads .env, and the
	// logger picks up ENV/LOG_LEVEL from the environment.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	app := &App{}

	if _, err := database.InitPostgres(); err != nil {
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, database.ClosePostgres)

	if _, err := database.InitRedis(); err != nil {
		app.Shutdown()
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, database.CloseRedis)

	if _, err := database.InitWikiSource(); err != nil {
		app.Shutdown()
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, database.CloseWikiSource)

	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		app.Shutdown()
		return nil, err
	}

	logger.Info("Bootstrap complete")
	return app, nil
}

// Shutdown 逆序释放已初始化的资源
func (a *App) Shutdown() {
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Error("Cleanup task failed", zap.Error(err))
		}
	}
	logger.Sync()
}
