package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/notifyd/internal/notify"
)

func TestParseSend(t *testing.T) {
	m, o, err := parseSend([]string{
		"-u", "critical",
		"-t", "3000",
		"--action", "default=Open",
		"-A", "snooze",
		"--progress", "40",
		"--wait",
		"Build done", "all green",
	})
	require.NoError(t, err)

	assert.Equal(t, "notifyctl", m.AppName)
	assert.Equal(t, "Build done", m.Summary)
	assert.Equal(t, "all green", m.Body)
	assert.Equal(t, int32(3000), m.Timeout)
	assert.Equal(t, notify.UrgencyCritical, m.Urgency)
	assert.Equal(t, []notify.Action{
		{ID: "default", Label: "Open"},
		{ID: "snooze", Label: "snooze"},
	}, m.Actions)
	require.NotNil(t, m.Progress)
	assert.Equal(t, 40, *m.Progress)
	assert.True(t, o.wait)
}

func TestParseSendDefaults(t *testing.T) {
	m, o, err := parseSend([]string{"Hello"})
	require.NoError(t, err)
	assert.Equal(t, int32(-1), m.Timeout)
	assert.Equal(t, notify.UrgencyNormal, m.Urgency)
	assert.Nil(t, m.Progress)
	assert.Empty(t, m.Body)
	assert.False(t, o.wait)
}

func TestParseSendErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no summary", nil},
		{"too many arguments", []string{"a", "b", "c"}},
		{"bad urgency", []string{"-u", "urgent", "x"}},
		{"unknown flag", []string{"--nope", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseSend(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID([]string{"42"}, "close")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)

	_, err = parseID(nil, "close")
	require.ErrorIs(t, err, errUsage)

	for _, bad := range []string{"0", "-1", "abc", "4294967296"} {
		_, err := parseID([]string{bad}, "close")
		assert.Error(t, err, bad)
	}
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	require.ErrorIs(t, run(nil, &out), errUsage)
	require.ErrorIs(t, run([]string{"bogus"}, &out), errUsage)

	var usage bytes.Buffer
	printUsage(&usage)
	for _, cmd := range commands {
		assert.Contains(t, usage.String(), cmd.name)
	}
}
