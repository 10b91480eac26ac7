package firebase

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// App holds the initialized Firebase app and the clients built from it. Clients that the
// configuration does not ask for stay nil.
type App struct {
	FirebaseApp     *firebase.App
	AuthClient      *auth.Client
	Firestore       *firestore.Client
	IdentityToolkit *identitytoolkit.Service
}

// Options selects which clients InitFirebase builds.
type Options struct {
	CredentialsPath string
	ProjectID       string
	APIKey          string
	WithAuth        bool
	WithFirestore   bool
}

// InitFirebase initializes the Firebase application and the requested clients
func InitFirebase(ctx context.Context, opts Options, logger *zap.Logger) (*App, error) {
	if opts.CredentialsPath == "" {
		return nil, fmt.Errorf("Firebase credentials path not provided")
	}

	// Check if the credentials file exists
	if _, err := os.Stat(opts.CredentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("Firebase credentials file not found at %s", opts.CredentialsPath)
	}

	var conf *firebase.Config
	if opts.ProjectID != "" {
		conf = &firebase.Config{ProjectID: opts.ProjectID}
	}
	firebaseApp, err := firebase.NewApp(ctx, conf, option.WithCredentialsFile(opts.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	app := &App{FirebaseApp: firebaseApp}

	if opts.WithAuth {
		app.AuthClient, err = firebaseApp.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firebase auth client: %w", err)
		}
		// Password and anonymous sign-in are client APIs keyed by the web API key.
		app.IdentityToolkit, err = identitytoolkit.NewService(ctx, option.WithAPIKey(opts.APIKey))
		if err != nil {
			return nil, fmt.Errorf("error creating identity toolkit client: %w", err)
		}
	}

	if opts.WithFirestore {
		app.Firestore, err = firebaseApp.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firestore client: %w", err)
		}
	}

	logger.Info("firebase initialized",
		zap.Bool("auth", app.AuthClient != nil),
		zap.Bool("firestore", app.Firestore != nil))
	return app, nil
}

// Close releases the Firestore client, if one was created.
func (a *App) Close() error {
	if a.Firestore != nil {
		return a.Firestore.Close()
	}
	return nil
}
