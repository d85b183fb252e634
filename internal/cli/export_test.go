package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
	"github.com/calvinalkan/idxcheck/pkg/idxcheck/idxchecktest"
	"github.com/calvinalkan/idxcheck/pkg/idxcheck/model"
)

// Misbehaving stores selectable with --store in tests.
const (
	StoreBroken  = "broken"  // index-hinted queries lose their last row
	StoreCorrupt = "corrupt" // Validate always fails
	StoreFlaky   = "flaky"   // the sixth insert fails
)

func init() {
	stores[StoreBroken] = faultyOpener(idxchecktest.Faults{DropIndexedRow: true})
	stores[StoreCorrupt] = faultyOpener(idxchecktest.Faults{Invalid: true, Details: "index entry without document"})
	stores[StoreFlaky] = faultyOpener(idxchecktest.Faults{FailOp: "insert", FailAfter: 5})
}

func faultyOpener(faults idxchecktest.Faults) storeOpener {
	return func(context.Context, Config, *zap.Logger) (idxcheck.Collection, func() error, error) {
		f := idxchecktest.NewFaulty(model.New())
		f.Faults = faults

		return f, func() error { return nil }, nil
	}
}
