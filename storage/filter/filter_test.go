// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage/filter"
)

func mustMatch(t *testing.T, rec, where objects.Record) bool {
	t.Helper()
	ok, err := filter.Match(rec, where)
	require.NoError(t, err)
	return ok
}

func TestEquality(t *testing.T) {
	rec := objects.Record{"name": "bob", "score": float64(10)}

	assert.True(t, mustMatch(t, rec, objects.Record{"name": "bob"}))
	assert.False(t, mustMatch(t, rec, objects.Record{"name": "alice"}))
	assert.False(t, mustMatch(t, rec, objects.Record{"missing": "x"}))
	assert.True(t, mustMatch(t, rec, objects.Record{
		"name": map[string]interface{}{"$eq": "bob"},
	}))

	// numeric equality across representations
	assert.True(t, mustMatch(t, rec, objects.Record{"score": 10}))
	assert.True(t, mustMatch(t, rec, objects.Record{"score": int64(10)}))
}

func TestArrayContainment(t *testing.T) {
	rec := objects.Record{"tags": []interface{}{"go", "db"}}

	// equality against an array field matches any element
	assert.True(t, mustMatch(t, rec, objects.Record{"tags": "go"}))
	assert.False(t, mustMatch(t, rec, objects.Record{"tags": "rust"}))

	// whole-array equality still works
	assert.True(t, mustMatch(t, rec, objects.Record{"tags": []interface{}{"go", "db"}}))

	assert.True(t, mustMatch(t, rec, objects.Record{
		"tags": map[string]interface{}{"$all": []interface{}{"go", "db"}},
	}))
	assert.False(t, mustMatch(t, rec, objects.Record{
		"tags": map[string]interface{}{"$all": []interface{}{"go", "rust"}},
	}))
}

func TestOperators(t *testing.T) {
	rec := objects.Record{"score": float64(10), "name": "bob"}

	assert.True(t, mustMatch(t, rec, objects.Record{
		"score": map[string]interface{}{"$gt": 5, "$lte": 10},
	}))
	assert.False(t, mustMatch(t, rec, objects.Record{
		"score": map[string]interface{}{"$lt": 10},
	}))
	assert.True(t, mustMatch(t, rec, objects.Record{
		"score": map[string]interface{}{"$ne": 11},
	}))
	assert.True(t, mustMatch(t, rec, objects.Record{
		"missing": map[string]interface{}{"$ne": "anything"},
	}))
	assert.True(t, mustMatch(t, rec, objects.Record{
		"score": map[string]interface{}{"$in": []interface{}{1, 10}},
	}))
	assert.True(t, mustMatch(t, rec, objects.Record{
		"score": map[string]interface{}{"$nin": []interface{}{1, 2}},
	}))
	assert.True(t, mustMatch(t, rec, objects.Record{
		"score":   map[string]interface{}{"$exists": true},
		"missing": map[string]interface{}{"$exists": false},
	}))
	assert.True(t, mustMatch(t, rec, objects.Record{
		"name": map[string]interface{}{"$regex": "^b.b$"},
	}))
}

func TestOperatorErrors(t *testing.T) {
	rec := objects.Record{"score": float64(10)}

	_, err := filter.Match(rec, objects.Record{
		"score": map[string]interface{}{"$huh": 1},
	})
	assert.True(t, errdata.HasCode(err, errdata.InvalidQuery))

	_, err = filter.Match(rec, objects.Record{
		"score": map[string]interface{}{"$in": "not-an-array"},
	})
	assert.True(t, errdata.HasCode(err, errdata.InvalidQuery))

	_, err = filter.Match(rec, objects.Record{
		"score": map[string]interface{}{"$exists": "yes"},
	})
	assert.True(t, errdata.HasCode(err, errdata.InvalidQuery))

	_, err = filter.Match(rec, objects.Record{"$or": "not-an-array"})
	assert.True(t, errdata.HasCode(err, errdata.InvalidQuery))
}

func TestCompound(t *testing.T) {
	rec := objects.Record{"score": float64(10), "name": "bob"}

	assert.True(t, mustMatch(t, rec, objects.Record{
		"$or": []interface{}{
			map[string]interface{}{"name": "alice"},
			map[string]interface{}{"score": 10},
		},
	}))
	assert.False(t, mustMatch(t, rec, objects.Record{
		"$and": []interface{}{
			map[string]interface{}{"name": "bob"},
			map[string]interface{}{"score": 11},
		},
	}))
	assert.True(t, mustMatch(t, rec, objects.Record{
		"$and": []interface{}{
			map[string]interface{}{"name": "bob"},
			map[string]interface{}{"$or": []interface{}{
				map[string]interface{}{"score": 10},
				map[string]interface{}{"score": 20},
			}},
		},
	}))
}

func TestDottedPaths(t *testing.T) {
	rec := objects.Record{
		"authData": map[string]interface{}{
			"github": map[string]interface{}{"id": "g1"},
		},
	}
	assert.True(t, mustMatch(t, rec, objects.Record{"authData.github.id": "g1"}))
	assert.False(t, mustMatch(t, rec, objects.Record{"authData.github.id": "g2"}))
	assert.False(t, mustMatch(t, rec, objects.Record{"authData.twitter.id": "t1"}))
}

func TestDateComparison(t *testing.T) {
	earlier := map[string]interface{}{"__type": "Date", "iso": "2024-01-01T00:00:00Z"}
	later := map[string]interface{}{"__type": "Date", "iso": "2024-06-01T00:00:00Z"}
	rec := objects.Record{"expiresAt": earlier}

	assert.True(t, mustMatch(t, rec, objects.Record{
		"expiresAt": map[string]interface{}{"$lt": later},
	}))
	assert.False(t, mustMatch(t, rec, objects.Record{
		"expiresAt": map[string]interface{}{"$gt": later},
	}))
	assert.True(t, mustMatch(t, rec, objects.Record{"expiresAt": earlier}))
}

func TestCaseInsensitive(t *testing.T) {
	rec := objects.Record{"username": "Alice"}

	ok, err := filter.MatchWith(rec, objects.Record{"username": "alice"},
		filter.Options{CaseInsensitive: true})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = filter.MatchWith(rec, objects.Record{"username": "alice"}, filter.Options{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsConstraint(t *testing.T) {
	assert.True(t, filter.IsConstraint(map[string]interface{}{"$gt": 1}))
	assert.False(t, filter.IsConstraint(map[string]interface{}{"$gt": 1, "name": "x"}))
	assert.False(t, filter.IsConstraint(map[string]interface{}{}))
	assert.False(t, filter.IsConstraint("scalar"))

	assert.True(t, filter.HasOperators(map[string]interface{}{"$gt": 1, "name": "x"}))
	assert.False(t, filter.HasOperators(map[string]interface{}{"name": "x"}))
}

func TestSortRecords(t *testing.T) {
	records := []objects.Record{
		{"name": "c", "score": float64(1)},
		{"name": "a", "score": float64(3)},
		{"name": "b", "score": float64(3)},
	}

	filter.SortRecords(records, []string{"-score", "name"})
	assert.Equal(t, "a", records[0]["name"])
	assert.Equal(t, "b", records[1]["name"])
	assert.Equal(t, "c", records[2]["name"])

	// no keys leaves the order alone
	filter.SortRecords(records, nil)
	assert.Equal(t, "a", records[0]["name"])
}
