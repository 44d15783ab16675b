package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_TypedGetters(t *testing.T) {
	s := New()
	s.Set("debug.handlers", true)
	s.Set("workers", 4)
	s.Set("rate", 0.5)
	s.Set("name", "run-1")

	assert.True(t, s.GetBool("debug.handlers", false))
	assert.Equal(t, 4, s.GetInt("workers", 0))
	assert.Equal(t, 0.5, s.GetFloat("rate", 0))
	assert.Equal(t, "run-1", s.GetString("name", ""))

	assert.False(t, s.GetBool("missing", false))
	assert.Equal(t, 9, s.GetInt("missing", 9))
	assert.Equal(t, "fallback", s.GetString("workers", "fallback"))
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	s := New()

	var got []any
	unsubscribe := s.Subscribe("lr", func(key string, value any) {
		got = append(got, value)
	})

	s.Set("lr", 0.1)
	s.Set("other", 1)
	require.Equal(t, []any{0.1}, got)

	unsubscribe()
	s.Set("lr", 0.2)
	assert.Equal(t, []any{0.1}, got)
}

func TestStore_BoolSwitchTracksValue(t *testing.T) {
	s := New()
	sw := s.BoolSwitch("debug.handlers")

	assert.False(t, sw())
	s.Set("debug.handlers", true)
	assert.True(t, sw())
}

func TestStore_LoadYAMLFlattensNestedKeys(t *testing.T) {
	s := New()

	doc := []byte(`
debug:
  handlers: true
training:
  grad_acc: 3
name: run-42
`)

	require.NoError(t, s.LoadYAML(doc))

	assert.True(t, s.GetBool("debug.handlers", false))
	assert.Equal(t, 3, s.GetInt("training.grad_acc", 0))
	assert.Equal(t, "run-42", s.GetString("name", ""))
}

func TestStore_LoadYAMLRejectsInvalidInput(t *testing.T) {
	s := New()
	assert.Error(t, s.LoadYAML([]byte("\t:bad")))
}
