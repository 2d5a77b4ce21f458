package evidence

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jpegHeader is enough of a JPEG for content sniffing.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestDiskSaveLoadRoundTrip(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	handle, err := d.Save(context.Background(), jpegHeader)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(handle, ".jpg"), "jpeg payloads get a .jpg name, got %s", handle)
	assert.NotContains(t, handle, "/", "handle must be opaque, not a path")

	data, err := d.Load(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, jpegHeader, data)
}

func TestDiskHandlesAreUnique(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	a, err := d.Save(context.Background(), []byte("one"))
	require.NoError(t, err)
	b, err := d.Save(context.Background(), []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDiskUnknownHandle(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	_, err = d.Load(context.Background(), "missing.jpg")
	require.Error(t, err)
}
