package firebase

import (
	"context"
	"errors"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// App хранит инициализированное Firebase-приложение и клиент аутентификации.
type App struct {
	FirebaseApp *firebase.App
	AuthClient  *auth.Client
}

// Config — параметры подключения к Firebase.
type Config struct {
	CredentialsPath string
	ProjectID       string
	StorageBucket   string
}

// Init инициализирует Firebase-приложение и клиент аутентификации.
func Init(ctx context.Context, logger zerolog.Logger, cfg Config) (*App, error) {
	if cfg.CredentialsPath == "" {
		return nil, errors.New("firebase credentials path not provided")
	}
	if _, err := os.Stat(cfg.CredentialsPath); err != nil {
		return nil, fmt.Errorf("firebase credentials file: %w", err)
	}

	opt := option.WithCredentialsFile(cfg.CredentialsPath)
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opt)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth client: %w", err)
	}

	logger.Info().Str("project", cfg.ProjectID).Msg("firebase: app initialized")
	return &App{FirebaseApp: app, AuthClient: authClient}, nil
}
