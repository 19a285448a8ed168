package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LoadsEmbeddedTemplates(t *testing.T) {
	r := NewRegistry()
	for _, id := range knownPrompts {
		tpl, err := r.ChatTemplate(id)
		require.NoError(t, err, id)
		assert.NotNil(t, tpl)
	}

	_, err := r.ChatTemplate("chapter_gen_v1")
	assert.ErrorContains(t, err, "unknown prompt id")
}
