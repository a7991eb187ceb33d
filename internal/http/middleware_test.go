package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("alice"))
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, secretMatches("", "anything"))
	assert.True(t, secretMatches("s3cret", "s3cret"))
	assert.False(t, secretMatches("s3cret", ""))
	assert.False(t, secretMatches("s3cret", "s3cre"))
}

func TestFlexFields(t *testing.T) {
	var d serverData
	require.NoError(t, json.Unmarshal([]byte(`{"nodeId":3,"eggId":"5","memory":"","pelican_server_id":"abc"}`), &d))

	assert.Equal(t, flexString("3"), d.NodeID)
	assert.Equal(t, flexInt(5), d.EggID)
	assert.Equal(t, flexInt(0), d.Memory)
	assert.Equal(t, flexString("abc"), d.PelicanServerID)

	assert.Error(t, json.Unmarshal([]byte(`{"eggId":"five"}`), &d))
}
