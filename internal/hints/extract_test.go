package hints

import (
	"bytes"
	"context"
	"image"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/notifyd/internal/imaging"
	"github.com/llehouerou/notifyd/internal/notify"
)

func newExtractor() *Extractor {
	return NewExtractor(imaging.NewCache(8), zerolog.Nop())
}

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	path := filepath.Join(dir, "img.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func writeGIF(t *testing.T, dir string, frames int) string {
	t.Helper()
	g := &gif.GIF{}
	for range frames {
		g.Image = append(g.Image, image.NewPaletted(image.Rect(0, 0, 4, 4), palette.Plan9))
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	path := filepath.Join(dir, "anim.gif")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestExtractText(t *testing.T) {
	res := newExtractor().Extract(context.Background(), Input{
		Summary: "<b>New</b> mail",
		Body:    `Hi <script>x()</script>see https://example.com`,
		Actions: []string{"default", "<i>Open</i>", "archive", "Archive", "dangling"},
	}, DefaultOptions())

	assert.Equal(t, "New mail", res.Summary)
	assert.Equal(t, "Hi see https://example.com", res.Body)
	require.Len(t, res.Links, 1)
	assert.Equal(t, "https://example.com", res.Body[res.Links[0].Start:res.Links[0].End])
	assert.Equal(t, []notify.Action{
		{ID: notify.DefaultAction, Label: "Open"},
		{ID: "archive", Label: "Archive"},
	}, res.Actions)
}

func TestExtractOptionsDisable(t *testing.T) {
	opts := DefaultOptions()
	opts.EnableLinks = false
	opts.ShowActions = false
	opts.ShowImages = false

	table := Parse(map[string]dbus.Variant{"image-data": imageData(2, 2)})
	res := newExtractor().Extract(context.Background(), Input{
		Body:    "https://example.com",
		Actions: []string{"default", "Open"},
		Table:   table,
	}, opts)
	assert.Empty(t, res.Links)
	assert.Empty(t, res.Actions)
	assert.Nil(t, res.Hints.Image)
	assert.Empty(t, res.Degraded, "disabled images are not decoded")
}

func TestExtractBodyTruncated(t *testing.T) {
	res := newExtractor().Extract(context.Background(), Input{Body: strings.Repeat("a", MaxBodySize+10)}, DefaultOptions())
	assert.Len(t, res.Body, MaxBodySize)
	assert.Contains(t, res.Degraded, "body truncated")
}

func TestExtractRawImage(t *testing.T) {
	table := Parse(map[string]dbus.Variant{"image-data": imageData(256, 128)})
	res := newExtractor().Extract(context.Background(), Input{Table: table}, DefaultOptions())
	require.NotNil(t, res.Hints.Image)
	assert.Equal(t, notify.ImageRaw, res.Hints.Image.Kind)
	assert.Equal(t, 128, res.Hints.Image.Raw.Width)
	assert.Equal(t, 64, res.Hints.Image.Raw.Height)
	assert.True(t, res.Hints.Image.Raw.Valid())
}

func TestExtractFallsBackAfterCorruptImage(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, 10, 10)
	corrupt := dbus.MakeVariant([]interface{}{int32(4), int32(4), int32(16), true, int32(8), int32(4), []byte{1, 2}})

	table := Parse(map[string]dbus.Variant{
		"image-data": corrupt,
		"image-path": dbus.MakeVariant(path),
	})
	res := newExtractor().Extract(context.Background(), Input{Table: table}, DefaultOptions())
	require.NotNil(t, res.Hints.Image)
	assert.Equal(t, notify.ImageFile, res.Hints.Image.Kind)
	assert.Equal(t, path, res.Hints.Image.Path)
	assert.Equal(t, 10, res.Hints.Image.Raw.Width)
	assert.Len(t, res.Degraded, 1)
}

func TestExtractMissingFileDegrades(t *testing.T) {
	table := Parse(map[string]dbus.Variant{"image-path": dbus.MakeVariant("/nonexistent/x.png")})
	res := newExtractor().Extract(context.Background(), Input{Summary: "s", Table: table}, DefaultOptions())
	assert.Nil(t, res.Hints.Image)
	assert.Equal(t, "s", res.Summary)
	assert.NotEmpty(t, res.Degraded)
}

func TestExtractIconName(t *testing.T) {
	table := Parse(map[string]dbus.Variant{"image-path": dbus.MakeVariant("mail-unread")})
	res := newExtractor().Extract(context.Background(), Input{Table: table}, DefaultOptions())
	require.NotNil(t, res.Hints.Image)
	assert.Equal(t, notify.ImageNamed, res.Hints.Image.Kind)
	assert.Equal(t, "mail-unread", res.Hints.Image.Name)
}

func TestExtractAnimation(t *testing.T) {
	dir := t.TempDir()
	path := writeGIF(t, dir, 5)
	table := Parse(map[string]dbus.Variant{"image-path": dbus.MakeVariant("file://" + path)})

	res := newExtractor().Extract(context.Background(), Input{Table: table}, DefaultOptions())
	require.NotNil(t, res.Hints.Animation)
	assert.Len(t, res.Hints.Animation.Frames, 5)
	assert.Nil(t, res.Hints.Image)

	opts := DefaultOptions()
	opts.EnableAnimations = false
	res = newExtractor().Extract(context.Background(), Input{Table: table}, opts)
	assert.Nil(t, res.Hints.Animation)
	require.NotNil(t, res.Hints.Image)
	assert.Equal(t, 4, res.Hints.Image.Raw.Width, "first frame only")
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	table := Parse(map[string]dbus.Variant{"image-data": imageData(2, 2)})
	res := newExtractor().Extract(ctx, Input{Table: table}, DefaultOptions())
	assert.Nil(t, res.Hints.Image)
}
