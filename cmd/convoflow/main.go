package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/convoflow/convoflow/internal/profile"
	"github.com/convoflow/convoflow/server"
	"github.com/convoflow/convoflow/server/chat"
	enginerrors "github.com/convoflow/convoflow/internal/errors"
	"github.com/convoflow/convoflow/store"
	"github.com/convoflow/convoflow/store/db"
	"github.com/convoflow/convoflow/store/kv"
)

const (
	envPrefix = "convoflow"
	version   = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "convoflow",
	Short: "Conversation cache-and-stream engine",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:   viper.GetString("mode"),
			Addr:   viper.GetString("addr"),
			Port:   viper.GetInt("port"),
			Driver: viper.GetString("driver"),
			DSN:    viper.GetString("dsn"),

			Version: version,
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		driver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			return err
		}

		cache := newCacheStore()
		st := store.New(driver, cache, store.CacheConfig{
			HistoryCap: instanceProfile.HistoryCacheCap,
			HistoryTTL: instanceProfile.HistoryCacheTTL,
			ListTTL:    instanceProfile.ListCacheTTL,
		})

		s, err := server.NewServer(ctx, instanceProfile, st, newGenerator(instanceProfile))
		if err != nil {
			return err
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return s.Start(groupCtx)
		})
		group.Go(func() error {
			<-groupCtx.Done()
			s.Shutdown(context.Background())
			return nil
		})
		return group.Wait()
	},
}

// newCacheStore returns the Redis cache when configured, otherwise the
// in-process fallback. The engine stays fully functional either way.
func newCacheStore() kv.Store {
	if !kv.IsRedisEnabled() {
		slog.Default().Info("redis not configured, using in-process cache")
		return kv.NewMemoryStore()
	}
	redisStore, err := kv.NewRedisStore(kv.ConfigFromEnv())
	if err != nil {
		slog.Default().Warn("failed to connect to redis, using in-process cache",
			slog.Any("error", err))
		return kv.NewMemoryStore()
	}
	slog.Default().Info("connected to redis cache")
	return redisStore
}

func newGenerator(instanceProfile *profile.Profile) chat.Generator {
	if instanceProfile.OpenAIAPIKey == "" {
		slog.Default().Warn("no generator API key configured, streaming turns will report errors")
		return chat.GeneratorFunc(func(context.Context, []chat.HistoryMessage) (string, error) {
			return "", enginerrors.GeneratorFailed("no answer generator configured", nil)
		})
	}
	return chat.NewOpenAIGenerator(
		instanceProfile.OpenAIAPIKey,
		instanceProfile.OpenAIBaseURL,
		instanceProfile.OpenAIModel,
	)
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `mode of the server, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of the server")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database connection string")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := rootCmd.Execute(); err != nil {
		slog.Default().Error("failed to run server", slog.Any("error", err))
		os.Exit(1)
	}
}
