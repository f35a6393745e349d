package app

import (
	"github.com/go-chi/oauth"
	"github.com/mbolis/airform-sync/airtable"
	"github.com/mbolis/airform-sync/config"
	"github.com/mbolis/airform-sync/database"
	"github.com/mbolis/airform-sync/reconcile"
)

type App struct {
	*database.DB
	*oauth.BearerServer
	config.Config

	Airtable   *airtable.Client
	Schema     *airtable.SchemaCache
	Reconciler *reconcile.Reconciler
}

// New wires the services of the application around db and cfg.
func New(db *database.DB, bearerServer *oauth.BearerServer, cfg config.Config) App {
	client := airtable.New(cfg.AirtableURL, cfg.AirtableKey, cfg.AirtableTimeout)
	return App{
		DB:           db,
		BearerServer: bearerServer,
		Config:       cfg,
		Airtable:     client,
		Schema:       airtable.NewSchemaCache(client, cfg.SchemaTTL),
		Reconciler:   reconcile.New(db, client),
	}
}
