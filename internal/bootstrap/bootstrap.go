// Package bootstrap turns configuration into the live infrastructure shared by the server
// and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/lovesignal/backend/internal/events"
	"github.com/anonto42/lovesignal/backend/internal/identity"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/anonto42/lovesignal/backend/internal/services"
	"github.com/anonto42/lovesignal/backend/internal/store"
	"github.com/anonto42/lovesignal/backend/pkg/config"
	"github.com/anonto42/lovesignal/backend/pkg/firebase"
	"go.uber.org/zap"
)

// Infra holds the opened backends. Close releases them in reverse order.
type Infra struct {
	Store     store.Store
	DB        *config.DB
	Firebase  *firebase.App
	Provider  identity.Provider
	Publisher events.Publisher
	Ledger    services.LedgerConfig

	closers []func() error
}

// LedgerConfig resolves the ledger section of the configuration.
func LedgerConfig(cfg *config.Config) (services.LedgerConfig, error) {
	policy, err := services.PolicyByName(cfg.Ledger.Policy)
	if err != nil {
		return services.LedgerConfig{}, err
	}
	mode, err := services.ParseLedgerMode(cfg.Ledger.Mode)
	if err != nil {
		return services.LedgerConfig{}, err
	}
	return services.LedgerConfig{
		Categories: cfg.Ledger.Categories,
		Policy:     policy,
		Mode:       mode,
	}, nil
}

// Open connects everything cfg asks for. On error, whatever was opened is closed again.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Infra, err error) {
	infra := &Infra{}
	defer func() {
		if err != nil {
			infra.Close()
		}
	}()

	if infra.Ledger, err = LedgerConfig(cfg); err != nil {
		return nil, err
	}

	if infra.DB, err = config.InitDB(ctx, cfg, logger); err != nil {
		return nil, err
	}
	infra.closers = append(infra.closers, func() error { infra.DB.CloseDB(); return nil })

	if cfg.NeedsFirebase() {
		infra.Firebase, err = firebase.InitFirebase(ctx, firebase.Options{
			CredentialsPath: cfg.FirebaseCredentialsPath,
			ProjectID:       cfg.FirebaseProjectID,
			APIKey:          cfg.FirebaseAPIKey,
			WithAuth:        cfg.IdentityProvider == config.IdentityFirebase,
			WithFirestore:   cfg.StoreBackend == config.StoreFirestore,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
		}
		infra.closers = append(infra.closers, infra.Firebase.Close)
	}

	switch cfg.StoreBackend {
	case config.StoreFirestore:
		infra.Store = store.NewFirestoreStore(infra.Firebase.Firestore, logger)
	case config.StoreMongo:
		infra.Store = store.NewMongoStore(infra.DB.Mongo.Database(cfg.MongoDatabase), logger)
	default:
		logger.Warn("using the in-memory store; data is lost on restart")
		infra.Store = store.NewMemoryStore(store.WithMemoryLogger(logger))
	}
	infra.closers = append(infra.closers, infra.Store.Close)

	switch cfg.IdentityProvider {
	case config.IdentityFirebase:
		infra.Provider = identity.NewFirebaseProvider(infra.Firebase.AuthClient, infra.Firebase.IdentityToolkit)
	default:
		accounts := repositories.NewPostgresAccountRepository(infra.DB.Postgres)
		infra.Provider = identity.NewLocalProvider(accounts, cfg.JWTSecret, cfg.TokenTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, map[string]string{
			events.ContactRequested: cfg.KafkaTopic,
			events.ContactAccepted:  cfg.KafkaTopic,
			events.ContactRemoved:   cfg.KafkaTopic,
			events.SignalSent:       cfg.KafkaTopic,
		})
		if err != nil {
			return nil, err
		}
		infra.Publisher = kafka
		infra.closers = append(infra.closers, kafka.Close)
		logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	return infra, nil
}

// Close releases every backend and joins the errors.
func (i *Infra) Close() error {
	var errs []error
	for j := len(i.closers) - 1; j >= 0; j-- {
		if err := i.closers[j](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}
