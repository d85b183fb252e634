package sqlitecoll_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxcheck/internal/sqlitecoll"
	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
	"github.com/calvinalkan/idxcheck/pkg/idxcheck/idxchecktest"
)

func open(t *testing.T, opts sqlitecoll.Options) *sqlitecoll.Collection {
	t.Helper()

	coll, err := sqlitecoll.Open(t.Context(), opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = coll.Close()
	})

	return coll
}

func Test_SQLite_Behaves_Like_A_Collection(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{sqlitecoll.DriverCGo, sqlitecoll.DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()

			idxchecktest.RunCollectionTests(t, func(t *testing.T) idxcheck.Collection {
				return open(t, sqlitecoll.Options{Driver: driver})
			})
		})
	}
}

func Test_SQLite_Behaves_Like_A_Collection_When_File_Backed(t *testing.T) {
	t.Parallel()

	idxchecktest.RunCollectionTests(t, func(t *testing.T) idxcheck.Collection {
		return open(t, sqlitecoll.Options{Path: filepath.Join(t.TempDir(), "docs.db")})
	})
}

func Test_SQLite_Open_Rejects_Unknown_Driver(t *testing.T) {
	t.Parallel()

	_, err := sqlitecoll.Open(t.Context(), sqlitecoll.Options{Driver: "postgres"})
	require.ErrorContains(t, err, "unknown driver")
}

func Test_SQLite_Explain_Shows_Forced_Access_Path(t *testing.T) {
	t.Parallel()

	coll := open(t, sqlitecoll.Options{})
	index := idxcheck.IndexSpec{
		{Field: "a", Direction: idxcheck.Descending},
		{Field: "b", Direction: idxcheck.Ascending},
	}

	idxchecktest.Setup(t, coll, []idxcheck.Field{"a", "b"}, index,
		idxchecktest.Doc(1, 1), idxchecktest.Doc(2, 2))

	q := idxcheck.Query{
		Predicate: idxcheck.Predicate{
			{Field: "a", Condition: idxcheck.Range{Lower: 1, LowerInclusive: true, Upper: 5}},
			{Field: "b", Condition: idxcheck.Membership{Values: []int{1, 2}}},
		},
		Sort:      idxcheck.SortSpec{{Field: "b", Direction: idxcheck.Descending}, {Field: "a", Direction: idxcheck.Ascending}},
		Hint:      idxcheck.UseIndex(index),
		ExcludeID: true,
	}

	plan, err := coll.Explain(t.Context(), q)
	require.NoError(t, err)
	assert.Contains(t, strings.Join(plan, "\n"), "docs_idx")

	q.Hint = idxcheck.NaturalOrder

	plan, err = coll.Explain(t.Context(), q)
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(plan, "\n"), "docs_idx")
}

func Test_SQLite_Query_Fails_When_Hinted_Index_Missing(t *testing.T) {
	t.Parallel()

	coll := open(t, sqlitecoll.Options{})
	require.NoError(t, coll.Reset(t.Context(), []idxcheck.Field{"a"}))

	_, err := coll.Query(t.Context(), idxcheck.Query{
		Hint: idxcheck.UseIndex(idxcheck.IndexSpec{{Field: "a", Direction: idxcheck.Ascending}}),
	})
	require.ErrorIs(t, err, sqlitecoll.ErrNoIndex)
}

func Test_SQLite_Insert_Rejects_Document_Missing_Field(t *testing.T) {
	t.Parallel()

	coll := open(t, sqlitecoll.Options{})
	require.NoError(t, coll.Reset(t.Context(), []idxcheck.Field{"a", "b"}))

	err := coll.Insert(t.Context(), idxcheck.Document{"a": 1})
	require.ErrorContains(t, err, `missing field "b"`)
}

func Test_SQLite_Reset_Rejects_Invalid_Field_Name(t *testing.T) {
	t.Parallel()

	coll := open(t, sqlitecoll.Options{})

	err := coll.Reset(t.Context(), []idxcheck.Field{`a"; DROP TABLE docs; --`})
	require.ErrorContains(t, err, "invalid field name")
}
