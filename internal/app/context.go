// Package app wires a workspace into a ready engine.
package app

import (
	"database/sql"
	"fmt"

	"bookline/internal/board"
	"bookline/internal/config"
	"bookline/internal/db"
	"bookline/internal/engine"
	"bookline/internal/migrate"
	"bookline/internal/notify"
)

// ResolveConfig loads bookline.yml when present, falling back to the
// built-in defaults so local commands work in a bare workspace.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// Open migrates the workspace database and returns an engine with the
// board client and webhook gateway attached when configured. The
// returned *sql.DB must be closed by the caller.
func Open(workspace string) (engine.Engine, *sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := ResolveConfig(workspace)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	e := engine.New(conn, cfg)
	if cfg.Board.BaseURL != "" {
		e.Board = board.NewHTTPClient(cfg.Board.BaseURL, cfg.Board.Token)
	}
	e.Notify = notify.NewWebhookGateway(cfg)
	return e, conn, nil
}
