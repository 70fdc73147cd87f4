package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsMerge(t *testing.T) {
	base := Params{"a": 1, "b": "keep"}
	merged := base.Merge(Params{"a": 2, "c": true})

	assert.Equal(t, Params{"a": 2, "b": "keep", "c": true}, merged)
	assert.Equal(t, Params{"a": 1, "b": "keep"}, base, "merge leaves the receiver untouched")
}

func TestParamsMergeNil(t *testing.T) {
	var base Params
	merged := base.Merge(Params{"a": 1})
	assert.Equal(t, Params{"a": 1}, merged)

	assert.Equal(t, Params{"a": 1}, merged.Merge(nil))
}

func TestParamsClone(t *testing.T) {
	base := Params{"a": 1}
	clone := base.Clone()
	clone["a"] = 2

	assert.Equal(t, 1, base["a"])
	assert.NotNil(t, Params(nil).Clone(), "nil clones to an insertable map")
}

func TestParamsString(t *testing.T) {
	assert.JSONEq(t, `{"a":1}`, Params{"a": 1}.String())
}
