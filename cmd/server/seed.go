package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zfogg/snapgram/internal/database"
	"github.com/zfogg/snapgram/internal/logger"
	"github.com/zfogg/snapgram/internal/seed"
	"go.uber.org/zap"
)

var (
	seedRandom int64
	seedCounts = seed.DefaultCounts
)

var seedCmd = &cobra.Command{
	Use:   "seed [dev|test|clean]",
	Short: "Fill the database with generated data",
	Long: `Seed the database.
  dev   - realistic data set of users, posts, comments, follows and conversations
  test  - the fixed accounts alice, bob, charlie, diana and eve
  clean - remove every seeded account and its data`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"dev", "test", "clean"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := "dev"
		if len(args) > 0 {
			mode = args[0]
		}

		initToolLogger()
		defer logger.Close()

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.Migrate(db); err != nil {
			return err
		}

		seeder := seed.NewSeeder(db, seedRandom)
		ctx := cmd.Context()
		switch mode {
		case "dev":
			err = seeder.SeedDev(ctx, seedCounts)
		case "test":
			err = seeder.SeedTest(ctx)
		case "clean":
			err = seeder.Clean(ctx)
		default:
			return fmt.Errorf("unknown seed mode %q (want dev, test or clean)", mode)
		}
		if err != nil {
			return fmt.Errorf("seed %s failed: %w", mode, err)
		}

		logger.Log.Info("Seeding completed", zap.String("mode", mode))
		return nil
	},
}

func init() {
	f := seedCmd.Flags()
	f.Int64Var(&seedRandom, "random-seed", 0, "Random seed for reproducible data (0 picks one)")
	f.IntVar(&seedCounts.Users, "users", seedCounts.Users, "Users to create")
	f.IntVar(&seedCounts.PostsPerUser, "posts-per-user", seedCounts.PostsPerUser, "Posts per user")
	f.IntVar(&seedCounts.Comments, "comments", seedCounts.Comments, "Comments to create")
	f.IntVar(&seedCounts.Likes, "likes", seedCounts.Likes, "Post likes to create")
	f.IntVar(&seedCounts.Follows, "follows", seedCounts.Follows, "Follow edges to create")
	f.IntVar(&seedCounts.Conversations, "conversations", seedCounts.Conversations, "Conversations to create")
}
