package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/calvinalkan/idxcheck/internal/kvcoll"
	"github.com/calvinalkan/idxcheck/internal/sqlitecoll"
	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
	"github.com/calvinalkan/idxcheck/pkg/idxcheck/model"
)

// storeOpener opens the collection a run targets. The returned close
// function releases it.
type storeOpener func(ctx context.Context, cfg Config, logger *zap.Logger) (idxcheck.Collection, func() error, error)

var stores = map[string]storeOpener{
	StoreSQLite: openSQLite,
	StoreBadger: openBadger,
	StoreModel:  openModel,
}

func openSQLite(ctx context.Context, cfg Config, logger *zap.Logger) (idxcheck.Collection, func() error, error) {
	coll, err := sqlitecoll.Open(ctx, sqlitecoll.Options{
		Driver: cfg.Driver,
		Path:   cfg.DB,
		Logger: logger.Named("sqlite"),
	})
	if err != nil {
		return nil, nil, err
	}

	return coll, coll.Close, nil
}

func openBadger(_ context.Context, cfg Config, logger *zap.Logger) (idxcheck.Collection, func() error, error) {
	coll, err := kvcoll.Open(kvcoll.Options{
		Path:     cfg.DB,
		InMemory: cfg.DB == "",
		Logger:   logger.Named("badger"),
	})
	if err != nil {
		return nil, nil, err
	}

	return coll, coll.Close, nil
}

func openModel(context.Context, Config, *zap.Logger) (idxcheck.Collection, func() error, error) {
	return model.New(), func() error { return nil }, nil
}
