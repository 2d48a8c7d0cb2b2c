//go:build unix

package hints

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFIFOPathDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipe.png")
	require.NoError(t, syscall.Mkfifo(path, 0o600))
	table := Parse(map[string]dbus.Variant{"image-path": dbus.MakeVariant(path)})

	done := make(chan Result, 1)
	go func() {
		done <- newExtractor().Extract(context.Background(), Input{Summary: "s", Table: table}, DefaultOptions())
	}()

	select {
	case res := <-done:
		assert.Nil(t, res.Hints.Image)
		assert.Nil(t, res.Hints.Animation)
		assert.Equal(t, "s", res.Summary)
		assert.NotEmpty(t, res.Degraded)
	case <-time.After(5 * time.Second):
		t.Fatal("extract blocked on a FIFO image path")
	}
}
