package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullableConvertsEmptyStringToNil(t *testing.T) {
	assert.Nil(t, nullable(""))
	assert.Equal(t, "group-1", nullable("group-1"))
}
