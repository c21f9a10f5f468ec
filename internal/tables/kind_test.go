package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindIsScalar(t *testing.T) {
	assert.True(t, KindString.IsScalar())
	assert.True(t, KindInteger.IsScalar())
	assert.True(t, KindNumber.IsScalar())
	assert.True(t, KindBoolean.IsScalar())
	assert.False(t, KindObject.IsScalar())
	assert.False(t, KindArray.IsScalar())
	assert.False(t, KindJoinable.IsScalar(), "joinable is still an array shape")
}
