// Package idxcheck is a randomized differential tester for index-accelerated
// queries in a document store.
//
// Every trial picks a random document shape and a random compound index,
// grows the collection with random documents, then churns it with a mix of
// inserts and delete-by-example operations. At random points (and once at the
// end of every trial) the [Oracle] runs a random range/membership predicate
// with a random sort order twice: once forced through the index and once
// forced through a full natural-order scan. The two ordered result sequences
// must be identical.
//
// # Basic Usage
//
//	coll := model.New() // or any [Collection]
//	drv := idxcheck.NewDriver(coll, idxcheck.NewRand(seed), idxcheck.DefaultConfig(),
//	    idxcheck.WithLogger(logger))
//
//	summary, err := drv.Run(ctx)
//	if err != nil {
//	    var v *idxcheck.Violation
//	    if errors.As(err, &v) {
//	        fmt.Println(v.Report())
//	    }
//	}
//
// # Errors
//
// There is no recovery. [ErrStore] (collaborator failure), [ErrIntegrity]
// (collection failed validation) and [ErrEquivalence] (indexed and scanned
// results differ) all end the run.
//
// # Determinism
//
// All randomness flows through an explicit [Source]. Reseeding a [Rand]
// reproduces every generated field set, index, document, predicate and sort
// order bit-for-bit.
package idxcheck
