package main

import (
	"path/filepath"
	"testing"
	"time"

	"garrison-bot/models"
	"garrison-bot/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneDeparted(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "members.json"), nil, time.Hour)
	now := time.Now()

	for _, uID := range []string{"stays", "left", "also-left"} {
		_, err := st.AddXP("g", uID, models.ActivityMessage, 3, now)
		require.NoError(t, err)
	}

	dropped := pruneDeparted(st, "g", map[string]bool{"stays": true})
	assert.Equal(t, 2, dropped)

	_, ok := st.View("g", "stays")
	assert.True(t, ok)
	_, ok = st.View("g", "left")
	assert.False(t, ok)
}

func TestPruneDepartedKeepsEveryone(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "members.json"), nil, time.Hour)

	_, err := st.AddXP("g", "u1", models.ActivityMessage, 3, time.Now())
	require.NoError(t, err)

	dropped := pruneDeparted(st, "g", map[string]bool{"u1": true})
	assert.Equal(t, 0, dropped)
}
