package kvcoll_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxcheck/internal/kvcoll"
	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
	"github.com/calvinalkan/idxcheck/pkg/idxcheck/idxchecktest"
)

const testMemTable = 16 << 20

func openMem(t *testing.T) *kvcoll.Collection {
	t.Helper()

	coll, err := kvcoll.Open(kvcoll.Options{InMemory: true, MemTableSize: testMemTable})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = coll.Close()
	})

	return coll
}

var (
	fieldsAB = []idxcheck.Field{"a", "b"}
	indexAB  = idxcheck.IndexSpec{
		{Field: "a", Direction: idxcheck.Ascending},
		{Field: "b", Direction: idxcheck.Descending},
	}
)

func Test_Badger_Behaves_Like_A_Collection(t *testing.T) {
	t.Parallel()

	idxchecktest.RunCollectionTests(t, func(t *testing.T) idxcheck.Collection {
		return openMem(t)
	})
}

func Test_Badger_Behaves_Like_A_Collection_When_On_Disk(t *testing.T) {
	t.Parallel()

	idxchecktest.RunCollectionTests(t, func(t *testing.T) idxcheck.Collection {
		coll, err := kvcoll.Open(kvcoll.Options{Path: t.TempDir(), MemTableSize: testMemTable})
		require.NoError(t, err)

		t.Cleanup(func() {
			_ = coll.Close()
		})

		return coll
	})
}

func Test_Badger_Open_Requires_Path_When_Persistent(t *testing.T) {
	t.Parallel()

	_, err := kvcoll.Open(kvcoll.Options{})
	require.ErrorContains(t, err, "path is required")
}

func Test_Badger_Index_Built_Over_Existing_Documents(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	coll := openMem(t)

	require.NoError(t, coll.Reset(ctx, fieldsAB))
	require.NoError(t, coll.Insert(ctx, idxchecktest.Doc(2, 1)))
	require.NoError(t, coll.Insert(ctx, idxchecktest.Doc(1, 3)))
	require.NoError(t, coll.CreateIndex(ctx, indexAB))
	require.NoError(t, coll.Insert(ctx, idxchecktest.Doc(1, 5)))

	v, err := coll.Validate(ctx)
	require.NoError(t, err)
	require.True(t, v.Valid, v.Details)
	assert.Equal(t, "3 documents, 3 index entries", v.Details)

	idxchecktest.QueryBoth(t, coll, indexAB, nil, idxcheck.SortSpec(indexAB), []idxcheck.Document{
		idxchecktest.Doc(1, 5), idxchecktest.Doc(1, 3), idxchecktest.Doc(2, 1),
	})

	require.Error(t, coll.CreateIndex(ctx, indexAB), "second index")
}

func Test_Badger_Validate_Detects_Index_Entry_Without_Document(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	coll := openMem(t)
	idxchecktest.Setup(t, coll, fieldsAB, indexAB, idxchecktest.Doc(1, 1), idxchecktest.Doc(2, 2))

	require.NoError(t, coll.CorruptDropDocument(2))

	v, err := coll.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Details, "missing document 2")
}

func Test_Badger_Validate_Detects_Stale_Index_Values(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	coll := openMem(t)
	idxchecktest.Setup(t, coll, fieldsAB, indexAB, idxchecktest.Doc(1, 1))

	require.NoError(t, coll.CorruptAddIndexEntry(idxchecktest.Doc(9, 9), 1))

	v, err := coll.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Details, "document 1")
}

func Test_Badger_Validate_Detects_Undecodable_Document(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	coll := openMem(t)
	idxchecktest.Setup(t, coll, fieldsAB, indexAB, idxchecktest.Doc(1, 1))

	require.NoError(t, coll.CorruptDocumentValue(1, []byte{1, 2, 3}))

	v, err := coll.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Details, "document value has 3 bytes")
}

func Test_Badger_Oracle_Detects_Missing_Index_Entry(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	coll := openMem(t)
	idxchecktest.Setup(t, coll, fieldsAB, indexAB, idxchecktest.Doc(1, 1))

	require.NoError(t, coll.CorruptAddIndexEntry(idxchecktest.Doc(4, 4), 7))

	oracle := idxcheck.NewOracle(coll, idxcheck.NewGenerator(idxcheck.NewRand(1)))
	err := oracle.Check(ctx, fieldsAB, indexAB)
	require.ErrorIs(t, err, idxcheck.ErrIntegrity)
}

func Test_Badger_ScanBounds_Narrow_To_Leading_Field(t *testing.T) {
	t.Parallel()

	asc := idxcheck.KeyPart{Field: "a", Direction: idxcheck.Ascending}
	desc := idxcheck.KeyPart{Field: "a", Direction: idxcheck.Descending}

	inRange := func(start, end, key []byte) bool {
		return string(key) >= string(start) && (end == nil || string(key) < string(end))
	}

	keyFor := func(part idxcheck.KeyPart, v int) []byte {
		spec := idxcheck.IndexSpec{part}

		return kvcoll.IndexKeyForTest(spec, idxcheck.Document{"a": v}, 1)
	}

	tests := []struct {
		name  string
		part  idxcheck.KeyPart
		cond  idxcheck.Condition
		match []int
	}{
		{"asc_gt_lte", asc, idxcheck.Range{Lower: 2, Upper: 5, UpperInclusive: true}, []int{3, 4, 5}},
		{"desc_gte_lt", desc, idxcheck.Range{Lower: 2, LowerInclusive: true, Upper: 5}, []int{2, 3, 4}},
		{"asc_in", asc, idxcheck.Membership{Values: []int{7, 1, 7}}, []int{1, 2, 3, 4, 5, 6, 7}},
		{"desc_in", desc, idxcheck.Membership{Values: []int{0, 9}}, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pred := idxcheck.Predicate{{Field: "a", Condition: tt.cond}}

			start, end, ok := kvcoll.ScanBounds(tt.part, pred)
			require.True(t, ok)

			var got []int

			for v := range idxcheck.MaxValue {
				if inRange(start, end, keyFor(tt.part, v)) {
					got = append(got, v)
				}
			}

			assert.Equal(t, tt.match, got)
		})
	}

	_, _, ok := kvcoll.ScanBounds(asc, idxcheck.Predicate{{Field: "a", Condition: idxcheck.Membership{}}})
	assert.False(t, ok, "empty membership scans nothing")

	_, _, ok = kvcoll.ScanBounds(asc, idxcheck.Predicate{{Field: "a", Condition: idxcheck.Range{Lower: 4, Upper: 5}}})
	assert.False(t, ok, "empty open range scans nothing")
}

func Test_Badger_IndexOrder_Recognizes_Native_And_Reverse_Sorts(t *testing.T) {
	t.Parallel()

	sort := func(dirs ...idxcheck.Direction) idxcheck.SortSpec {
		out := make(idxcheck.SortSpec, len(dirs))
		for i, d := range dirs {
			out[i] = idxcheck.KeyPart{Field: indexAB[i].Field, Direction: d}
		}

		return out
	}

	inOrder, reverse := kvcoll.IndexOrder(indexAB, sort(idxcheck.Ascending, idxcheck.Descending))
	assert.True(t, inOrder)
	assert.False(t, reverse)

	inOrder, reverse = kvcoll.IndexOrder(indexAB, sort(idxcheck.Descending, idxcheck.Ascending))
	assert.True(t, inOrder)
	assert.True(t, reverse)

	inOrder, _ = kvcoll.IndexOrder(indexAB, sort(idxcheck.Ascending, idxcheck.Ascending))
	assert.False(t, inOrder)

	inOrder, _ = kvcoll.IndexOrder(indexAB, idxcheck.SortSpec{{Field: "b", Direction: idxcheck.Descending}})
	assert.False(t, inOrder)
}

func Test_Badger_PrefixEnd_Is_Exclusive_Upper_Bound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{'i', 0x01}, kvcoll.PrefixEnd([]byte{'i', 0x00}))
	assert.Equal(t, []byte{'j'}, kvcoll.PrefixEnd([]byte{'i', 0xff}))
	assert.Nil(t, kvcoll.PrefixEnd([]byte{0xff, 0xff}))
}
