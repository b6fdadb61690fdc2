package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/radiantplatform/oauth-core/authcode"
	"github.com/radiantplatform/oauth-core/internal/config"
	"github.com/radiantplatform/oauth-core/internal/metrics"
	"github.com/radiantplatform/oauth-core/oauth2"
	"github.com/radiantplatform/oauth-core/server"
	"github.com/radiantplatform/oauth-core/storage"
	"github.com/radiantplatform/oauth-core/token"
	"github.com/radiantplatform/oauth-core/token/keys"
)

const (
	shutdownTimeout = 5 * time.Second
	sweepInterval   = 15 * time.Minute
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()

	c := config.New()
	initLogging(c.GetLogLevel())
	displayAppname(c.GetAppName())

	db, err := storage.Open(c.GetDatabaseDSN())
	if err != nil {
		return errors.Wrap(err, "storage.Open")
	}
	if err := storage.Migrate(db); err != nil {
		return errors.Wrap(err, "storage.Migrate")
	}

	secretStore, err := storage.NewEncryptedSecretStore(db, c.GetSecretCipherKey())
	if err != nil {
		return errors.Wrap(err, "storage.NewEncryptedSecretStore")
	}

	keyManager, err := keys.NewManager(storage.NewKeyRepo(db), secretStore,
		keys.WithKeyLifetime(c.GetKeyLifetime()),
		keys.WithGraceWindow(c.GetKeyGraceWindow()),
		keys.WithRetention(c.GetKeyRetention()),
		keys.WithCacheTTL(c.GetSignerCacheTTL()),
	)
	if err != nil {
		return errors.Wrap(err, "keys.NewManager")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := keyManager.EnsureActiveKey(ctx, c.GetDefaultTenantID()); err != nil {
		return errors.Wrap(err, "keyManager.EnsureActiveKey")
	}

	mm, err := metrics.Default()
	if err != nil {
		return errors.Wrap(err, "metrics.Default")
	}

	store := storage.NewStore(db)
	clientRepo := storage.NewClientRepo(db)
	userRepo := storage.NewUserRepo(db)
	scopeRegistry := oauth2.NewScopeRegistry()

	tokenManager, err := token.New(store, clientRepo, userRepo, keyManager,
		token.WithIssuer(c.GetBaseURL()),
		token.WithAudience(c.GetAudience()),
		token.WithTokenExpiry(
			c.GetDefaultAccessTokenExpiry(),
			c.GetDefaultRefreshTokenExpiry(),
			c.GetDefaultIDTokenExpiry(),
		),
		token.WithScopeRegistry(scopeRegistry),
		token.WithMetrics(mm),
	)
	if err != nil {
		return errors.Wrap(err, "token.New")
	}

	codeIssuer, err := authcode.NewIssuer(storage.NewCodeRepo(db), storage.NewConsentRepo(db),
		authcode.WithLifetime(c.GetAuthCodeTimeout()),
	)
	if err != nil {
		return errors.Wrap(err, "authcode.NewIssuer")
	}

	srv, err := server.New(c, tokenManager, codeIssuer, clientRepo, userRepo, keyManager,
		server.HeaderAuthenticator{},
		server.WithScopeRegistry(scopeRegistry),
	)
	if err != nil {
		return errors.Wrap(err, "server.New")
	}

	go runSweeps(ctx, codeIssuer, keyManager, storage.NewAccessTokenRepo(db), storage.NewRefreshTokenRepo(db))

	go func() {
		if err := srv.Start(c.GetPort()); err != nil {
			log.Error().Err(err).Msg("server start failed")
			cancel()
		}
	}()

	waitForStopSignal(ctx)
	return shutdown(srv)
}

// runSweeps purges expired codes and tokens and deletes retired signing keys
// on a fixed interval.
func runSweeps(ctx context.Context, codeIssuer *authcode.Issuer, keyManager *keys.Manager, accessTokens *storage.AccessTokenRepo, refreshTokens *storage.RefreshTokenRepo) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := codeIssuer.PurgeExpired(ctx); err != nil {
				log.Warn().Err(err).Msg("code purge failed")
			} else if n > 0 {
				log.Info().Int64("removed", n).Msg("purged expired authorization codes")
			}

			if n, err := accessTokens.DeleteExpired(ctx, time.Now()); err != nil {
				log.Warn().Err(err).Msg("access token purge failed")
			} else if n > 0 {
				log.Info().Int64("removed", n).Msg("purged expired access tokens")
			}

			if n, err := refreshTokens.DeleteExpired(ctx, time.Now()); err != nil {
				log.Warn().Err(err).Msg("refresh token purge failed")
			} else if n > 0 {
				log.Info().Int64("removed", n).Msg("purged expired refresh tokens")
			}

			if n, err := keyManager.Cleanup(ctx); err != nil {
				log.Warn().Err(err).Msg("key cleanup failed")
			} else if n > 0 {
				log.Info().Int("removed", n).Msg("deleted retired signing keys")
			}
		}
	}
}

func waitForStopSignal(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
}

func shutdown(srv *server.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func initLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
