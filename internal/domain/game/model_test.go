package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameValidate(t *testing.T) {
	t.Parallel()

	valid := Game{SubsiteKey: "nordic", GameKey: "hockey-2026", SyncIntervalMinutes: 60}
	require.NoError(t, valid.Validate())

	cases := map[string]Game{
		"missing subsite":   {GameKey: "g", SyncIntervalMinutes: 60},
		"missing game key":  {SubsiteKey: "s", SyncIntervalMinutes: 60},
		"interval too low":  {SubsiteKey: "s", GameKey: "g", SyncIntervalMinutes: 4},
		"interval too high": {SubsiteKey: "s", GameKey: "g", SyncIntervalMinutes: 1441},
	}
	for name, g := range cases {
		assert.Error(t, g.Validate(), name)
	}
}

func TestGameSyncInterval(t *testing.T) {
	t.Parallel()

	d, ok := Game{SyncIntervalMinutes: 5}.SyncInterval()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, d)

	_, ok = Game{SyncIntervalMinutes: 0}.SyncInterval()
	assert.False(t, ok)
}

func TestNormalizeRoundState(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RoundStatePending, NormalizeRoundState("  "))
	assert.Equal(t, RoundStateOpen, NormalizeRoundState(" OPEN "))
}
