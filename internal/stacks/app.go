// Package stacks declares the Cohort Modeler application: a network stack, a
// Neptune database stack, a serverless API stack and a SageMaker notebook
// stack. The last three consume the network, and the API and notebook consume
// the database, through cross-stack references.
package stacks

import (
	"go.uber.org/zap"

	"github.com/cohort-modeler/cohort-infra/internal/config"
	"github.com/cohort-modeler/cohort-infra/internal/construct"
)

// Cohort holds the four stacks of the application.
type Cohort struct {
	App      *construct.App
	Network  *Network
	Database *Database
	API      *API
	Notebook *Notebook
}

// New declares the application described by cfg.
func New(cfg *config.Config, logger *zap.Logger) *Cohort {
	app := construct.NewApp(cfg.App,
		construct.WithAssetBucket(cfg.Assets.Bucket),
		construct.WithAssetDir(cfg.Assets.Dir),
		construct.WithLogger(logger),
	)

	net := NewNetwork(app, cfg)
	db := NewDatabase(app, cfg, net)

	return &Cohort{
		App:      app,
		Network:  net,
		Database: db,
		API:      NewAPI(app, cfg, net, db),
		Notebook: NewNotebook(app, cfg, net, db),
	}
}
