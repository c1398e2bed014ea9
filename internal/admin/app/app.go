package app

import (
	"fmt"
	"os"

	"github.com/skordev/authline/internal/config"
	"github.com/skordev/authline/internal/crypt"
	"github.com/skordev/authline/internal/store"
)

type App struct {
	ConfigPath string
	Config     *config.Config

	Users *store.SQLite
}

func New(configPath string) (*App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(cfg.Paths.Data, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	key, err := crypt.LoadOrCreateKey(cfg.Paths.SecretKey)
	if err != nil {
		return nil, nil, err
	}
	crypter, err := crypt.New(key)
	if err != nil {
		return nil, nil, err
	}

	users, err := store.Open(cfg.Paths.Database, crypter)
	if err != nil {
		return nil, nil, err
	}

	// Best-effort online use: reduce SQLITE_BUSY failures.
	users.SetBusyTimeout(5000)

	a := &App{
		ConfigPath: configPath,
		Config:     cfg,
		Users:      users,
	}

	cleanup := func() {
		_ = users.Close()
	}

	return a, cleanup, nil
}
