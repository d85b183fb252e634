package idxchecktest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// Factory returns a fresh collection for one subtest. Factories register
// their own cleanup with t.Cleanup.
type Factory func(t *testing.T) idxcheck.Collection

// Doc builds a document over the fields a, b, c, ... from values.
func Doc(values ...int) idxcheck.Document {
	fields := idxcheck.Universe()

	doc := make(idxcheck.Document, len(values))
	for i, v := range values {
		doc[fields[i]] = v
	}

	return doc
}

// Setup resets coll to fields, creates index and inserts docs.
func Setup(t *testing.T, coll idxcheck.Collection, fields []idxcheck.Field, index idxcheck.IndexSpec, docs ...idxcheck.Document) {
	t.Helper()

	ctx := t.Context()

	require.NoError(t, coll.Reset(ctx, fields))
	require.NoError(t, coll.CreateIndex(ctx, index))

	for _, d := range docs {
		require.NoError(t, coll.Insert(ctx, d))
	}
}

// QueryBoth runs pred and sort through the index and through the natural
// scan and requires both results to equal want.
func QueryBoth(t *testing.T, coll idxcheck.Collection, index idxcheck.IndexSpec, pred idxcheck.Predicate, sort idxcheck.SortSpec, want []idxcheck.Document) {
	t.Helper()

	ctx := t.Context()

	indexed, err := coll.Query(ctx, idxcheck.Query{Predicate: pred, Sort: sort, Hint: idxcheck.UseIndex(index), ExcludeID: true})
	require.NoError(t, err)

	scanned, err := coll.Query(ctx, idxcheck.Query{Predicate: pred, Sort: sort, Hint: idxcheck.NaturalOrder, ExcludeID: true})
	require.NoError(t, err)

	if diff := cmp.Diff(want, indexed, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("indexed mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(want, scanned, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("scanned mismatch (-want +got):\n%s", diff)
	}
}

var (
	fieldsA  = []idxcheck.Field{"a"}
	fieldsAB = []idxcheck.Field{"a", "b"}
	indexA   = idxcheck.IndexSpec{{Field: "a", Direction: idxcheck.Ascending}}
	sortA    = idxcheck.SortSpec{{Field: "a", Direction: idxcheck.Ascending}}
)

// RunCollectionTests runs the behavior every [idxcheck.Collection] must
// share, ending with a short randomized driver run.
func RunCollectionTests(t *testing.T, newColl Factory) {
	t.Helper()

	t.Run("Range_Query_Honors_Inclusive_Bounds", func(t *testing.T) {
		t.Parallel()

		coll := newColl(t)
		Setup(t, coll, fieldsA, indexA, Doc(3), Doc(7), Doc(1), Doc(7))

		pred := idxcheck.Predicate{{Field: "a", Condition: idxcheck.Range{
			Lower: 2, LowerInclusive: true, Upper: 7, UpperInclusive: true,
		}}}

		QueryBoth(t, coll, indexA, pred, sortA, []idxcheck.Document{Doc(3), Doc(7), Doc(7)})
	})

	t.Run("Range_Query_Excludes_Exclusive_Bounds", func(t *testing.T) {
		t.Parallel()

		coll := newColl(t)
		Setup(t, coll, fieldsA, indexA, Doc(3), Doc(4), Doc(5), Doc(6))

		pred := idxcheck.Predicate{{Field: "a", Condition: idxcheck.Range{
			Lower: 3, Upper: 5, UpperInclusive: true,
		}}}

		QueryBoth(t, coll, indexA, pred, sortA, []idxcheck.Document{Doc(4), Doc(5)})

		empty := idxcheck.Predicate{{Field: "a", Condition: idxcheck.Range{Lower: 3, Upper: 4}}}
		QueryBoth(t, coll, indexA, empty, sortA, nil)
	})

	t.Run("Membership_Query_Sees_Delete_By_Example", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		coll := newColl(t)
		Setup(t, coll, fieldsA, indexA, Doc(3), Doc(7), Doc(1), Doc(7))

		pred := idxcheck.Predicate{{Field: "a", Condition: idxcheck.Membership{Values: []int{7, 7, 9}}}}
		QueryBoth(t, coll, indexA, pred, sortA, []idxcheck.Document{Doc(7), Doc(7)})

		removed, err := coll.DeleteByExample(ctx, Doc(7))
		require.NoError(t, err)
		require.Equal(t, 2, removed, "delete by example removes every match")

		require.NoError(t, coll.Insert(ctx, Doc(7)))
		QueryBoth(t, coll, indexA, pred, sortA, []idxcheck.Document{Doc(7)})
	})

	t.Run("Empty_Membership_Matches_Nothing", func(t *testing.T) {
		t.Parallel()

		coll := newColl(t)
		Setup(t, coll, fieldsA, indexA, Doc(0), Doc(9))

		pred := idxcheck.Predicate{{Field: "a", Condition: idxcheck.Membership{}}}
		QueryBoth(t, coll, indexA, pred, sortA, nil)
	})

	t.Run("Inverted_Sort_Agrees_With_Index", func(t *testing.T) {
		t.Parallel()

		coll := newColl(t)
		index := idxcheck.IndexSpec{
			{Field: "a", Direction: idxcheck.Descending},
			{Field: "b", Direction: idxcheck.Ascending},
		}
		sort := idxcheck.SortSpec{
			{Field: "a", Direction: idxcheck.Ascending},
			{Field: "b", Direction: idxcheck.Descending},
		}

		Setup(t, coll, fieldsAB, index, Doc(1, 2), Doc(2, 5), Doc(1, 7), Doc(2, 1), Doc(0, 0))

		pred := idxcheck.Predicate{
			{Field: "a", Condition: idxcheck.Range{Lower: 0, LowerInclusive: true, Upper: 9, UpperInclusive: true}},
			{Field: "b", Condition: idxcheck.Membership{Values: []int{0, 1, 2, 5, 7}}},
		}

		QueryBoth(t, coll, index, pred, sort, []idxcheck.Document{
			Doc(0, 0), Doc(1, 7), Doc(1, 2), Doc(2, 5), Doc(2, 1),
		})

		mixed := idxcheck.SortSpec{
			{Field: "a", Direction: idxcheck.Ascending},
			{Field: "b", Direction: idxcheck.Ascending},
		}
		QueryBoth(t, coll, index, pred[:1], mixed, []idxcheck.Document{
			Doc(0, 0), Doc(1, 2), Doc(1, 7), Doc(2, 1), Doc(2, 5),
		})

		native := idxcheck.SortSpec{
			{Field: "a", Direction: idxcheck.Descending},
			{Field: "b", Direction: idxcheck.Ascending},
		}
		QueryBoth(t, coll, index, pred, native, []idxcheck.Document{
			Doc(2, 1), Doc(2, 5), Doc(1, 2), Doc(1, 7), Doc(0, 0),
		})
	})

	t.Run("Delete_By_Example_Is_NoOp_When_Nothing_Matches", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		coll := newColl(t)
		Setup(t, coll, fieldsAB, idxcheck.IndexSpec{
			{Field: "b", Direction: idxcheck.Ascending},
			{Field: "a", Direction: idxcheck.Ascending},
		}, Doc(1, 1), Doc(1, 2))

		removed, err := coll.DeleteByExample(ctx, Doc(2, 2))
		require.NoError(t, err)
		require.Zero(t, removed)

		removed, err = coll.DeleteByExample(ctx, Doc(1, 1))
		require.NoError(t, err)
		require.Equal(t, 1, removed)

		docs, err := coll.Query(ctx, idxcheck.Query{Hint: idxcheck.NaturalOrder, ExcludeID: true})
		require.NoError(t, err)
		require.Equal(t, []idxcheck.Document{Doc(1, 2)}, docs)
	})

	t.Run("Query_Returns_Identity_Unless_Excluded", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		coll := newColl(t)
		Setup(t, coll, fieldsA, indexA, Doc(5), Doc(6))

		for _, hint := range []idxcheck.Hint{idxcheck.NaturalOrder, idxcheck.UseIndex(indexA)} {
			docs, err := coll.Query(ctx, idxcheck.Query{Sort: sortA, Hint: hint})
			require.NoError(t, err)
			require.Len(t, docs, 2)

			for _, d := range docs {
				require.Contains(t, d, idxcheck.IDField, "hint %s", hint)
			}

			require.NotEqual(t, docs[0][idxcheck.IDField], docs[1][idxcheck.IDField])

			docs, err = coll.Query(ctx, idxcheck.Query{Sort: sortA, Hint: hint, ExcludeID: true})
			require.NoError(t, err)
			require.Equal(t, []idxcheck.Document{Doc(5), Doc(6)}, docs)
		}
	})

	t.Run("Validate_Reports_Valid_After_Churn", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		coll := newColl(t)
		Setup(t, coll, fieldsAB, idxcheck.IndexSpec{
			{Field: "a", Direction: idxcheck.Descending},
			{Field: "b", Direction: idxcheck.Descending},
		}, Doc(1, 1), Doc(2, 2), Doc(1, 1), Doc(3, 3))

		_, err := coll.DeleteByExample(ctx, Doc(1, 1))
		require.NoError(t, err)

		v, err := coll.Validate(ctx)
		require.NoError(t, err)
		require.True(t, v.Valid, "details: %s", v.Details)
	})

	t.Run("Reset_Drops_Documents_And_Index", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		coll := newColl(t)
		Setup(t, coll, fieldsA, indexA, Doc(1), Doc(2))

		require.NoError(t, coll.Reset(ctx, fieldsAB))

		docs, err := coll.Query(ctx, idxcheck.Query{Hint: idxcheck.NaturalOrder})
		require.NoError(t, err)
		require.Empty(t, docs)

		_, err = coll.Query(ctx, idxcheck.Query{Hint: idxcheck.UseIndex(indexA)})
		require.Error(t, err, "index must not survive reset")
	})

	t.Run("Random_Workload_Passes_Oracle", func(t *testing.T) {
		t.Parallel()

		cfg := idxcheck.Config{Trials: 3, SeedOps: 300, MutateOps: 600, CheckRate: 0.02, InsertRate: 0.9}

		rec := &Recorder{}
		drv := idxcheck.NewDriver(newColl(t), idxcheck.NewRand(20240611), cfg, idxcheck.WithObserver(rec.Observe))

		summary, err := drv.Run(t.Context())
		require.NoError(t, err)
		require.Len(t, summary.Trials, cfg.Trials)

		for trial := range cfg.Trials {
			require.GreaterOrEqual(t, rec.ChecksPerTrial()[trial], 1, "trial %d", trial)
		}
	})
}
