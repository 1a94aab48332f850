package main

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/supermarx/karl/internal/config"
	"github.com/supermarx/karl/internal/dbconn"
	"github.com/supermarx/karl/internal/facade"
	"github.com/supermarx/karl/internal/identity"
	"github.com/supermarx/karl/internal/imaging"
	"github.com/supermarx/karl/internal/migrate"
	"github.com/supermarx/karl/internal/store"
)

// app bundles everything a CLI action needs: the open database handle (so
// the caller can close it) and the wired facade.
type app struct {
	db *sql.DB
	f  *facade.Facade
}

func bootstrap() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := dbconn.Open(cfg)
	if err != nil {
		return nil, err
	}

	if v, err := migrate.Version(db); err == nil {
		logger.Info("storage engine started", zap.Int("schemaversion", v))
	}

	sink, err := imaging.NewSink(cfg.ImageCitations.Path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("karl: %w", err)
	}

	products := store.NewProductStore(db, logger)
	tags := store.NewTagStore(db)
	images := store.NewImageCitationStore(db)
	sessions := store.NewSessionStore(db)
	ident := identity.NewService(sessions, logger, !noPerms)
	if cfg.Session.TicketTTL != 0 {
		ident.TicketTTL = time.Duration(cfg.Session.TicketTTL)
	}
	if cfg.Session.SessionTTL != 0 {
		ident.SessionTTL = time.Duration(cfg.Session.SessionTTL)
	}

	return &app{db: db, f: facade.New(products, tags, images, ident, sink, logger)}, nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
