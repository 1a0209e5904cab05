package strings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pstrings "arbiter/pkg/platform/strings"
)

func TestDedupeAndTrim(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar"},
		pstrings.DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "}))

	// Case differences are preserved and treated as distinct.
	assert.Equal(t, []string{"Foo", "foo"},
		pstrings.DedupeAndTrim([]string{"Foo", "foo"}))

	assert.Empty(t, pstrings.DedupeAndTrim(nil))
	assert.Empty(t, pstrings.DedupeAndTrim([]string{"", "   "}))
}

func TestDedupeAndTrimLower(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar"},
		pstrings.DedupeAndTrimLower([]string{"  FOO ", "bar", "Foo"}))

	assert.Empty(t, pstrings.DedupeAndTrimLower(nil))
}
