package qrcode

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNG(t *testing.T) {
	data, err := PNG(BookingContent("b-42"), SizeSmall)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, SizeSmall, img.Bounds().Dx())
}

func TestPNGRejectsEmptyContent(t *testing.T) {
	_, err := PNG("", SizeSmall)
	assert.Error(t, err)
}

func TestDataURI(t *testing.T) {
	uri, err := DataURI("b-1", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}
