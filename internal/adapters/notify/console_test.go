package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoAndErrorGoToWriter(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out, false)

	console.Info("session created")
	console.Error("join failed")

	assert.Equal(t, "session created\nerror: join failed\n", out.String())
}

func TestConfirmServerSwitchPolicy(t *testing.T) {
	var out bytes.Buffer

	decline := NewConsole(&out, false)
	ok, err := decline.ConfirmServerSwitch(context.Background(), "https://a", "https://b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, out.String())

	follow := NewConsole(&out, true)
	ok, err = follow.ConfirmServerSwitch(context.Background(), "https://a", "https://b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "https://a -> https://b")
}
