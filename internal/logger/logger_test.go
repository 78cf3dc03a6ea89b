package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{"uri", "bolt://localhost:7687", "password", "hunter2", "api_key", "sk-1", "dangling"})
	assert.Equal(t, []interface{}{
		"uri", "bolt://localhost:7687",
		"password", "[REDACTED]",
		"api_key", "[REDACTED]",
		"dangling",
	}, out)
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		l, err := New(mode)
		assert.NoError(t, err)
		assert.NotNil(t, l.SugaredLogger)
	}
}
