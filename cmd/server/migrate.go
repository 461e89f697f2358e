package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/zfogg/snapgram/internal/database"
	"github.com/zfogg/snapgram/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	dbDriver string
	dbURL    string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		initToolLogger()
		defer logger.Close()

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		logger.Log.Info("Running migrations...", zap.String("driver", dbDriver))
		return database.Migrate(db)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{migrateCmd, seedCmd} {
		cmd.Flags().StringVar(&dbDriver, "driver", "", "Database driver: postgres or sqlite (defaults to DATABASE_DRIVER)")
		cmd.Flags().StringVar(&dbURL, "database-url", "", "Database connection string (defaults to DATABASE_URL)")
	}
}

// openDatabase resolves the connection flags against the environment, which
// is only complete once the env file has been loaded
func openDatabase() (*gorm.DB, error) {
	if dbDriver == "" {
		dbDriver = envOr("DATABASE_DRIVER", "postgres")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	return database.Open(database.Options{Driver: dbDriver, URL: dbURL})
}

// initToolLogger sets up console-only logging for one-shot commands
func initToolLogger() {
	_ = logger.Initialize(envOr("LOG_LEVEL", "info"), "-")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
