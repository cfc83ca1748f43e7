package filestore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core"
)

func pngImage(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &buf
}

func newStore(t *testing.T, maxWidth int) *LocalStore {
	conf := core.NewTestConfig()
	conf.Storage.MediaRoot = t.TempDir()
	conf.Storage.MaxImageWidth = maxWidth
	return NewLocalStore(conf)
}

func TestLocalStore_SaveImage(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 100)

	t.Run("small image is kept as is", func(t *testing.T) {
		data := pngImage(t, 50, 20)
		orig := data.Bytes()

		rel, err := store.SaveImage(ctx, "payments", bytes.NewReader(orig), "comprobante pago.png")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(rel, "payments/"), rel)
		assert.True(t, strings.HasSuffix(rel, "-comprobante_pago.png"), rel)

		saved, err := os.ReadFile(filepath.Join(store.Root(), filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, orig, saved)
	})

	t.Run("wide image is downscaled", func(t *testing.T) {
		rel, err := store.SaveImage(ctx, "payments", pngImage(t, 400, 200), "wide.png")
		require.NoError(t, err)

		img, err := imaging.Open(filepath.Join(store.Root(), filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, 100, img.Bounds().Dx())
		assert.Equal(t, 50, img.Bounds().Dy())
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := store.SaveImage(ctx, "payments", strings.NewReader("%PDF-1.4 fake"), "proof.pdf")
		require.Error(t, err)
		vErr, ok := err.(*core.ValidationError)
		require.True(t, ok, "got %T", err)
		assert.Equal(t, "proof_image", vErr.Fields[0].Field)
	})

	t.Run("corrupt png", func(t *testing.T) {
		data := pngImage(t, 50, 20).Bytes()
		_, err := store.SaveImage(ctx, "payments", bytes.NewReader(data[:40]), "broken.png")
		assert.Error(t, err)
	})

	t.Run("too large", func(t *testing.T) {
		big := bytes.Repeat([]byte{0}, MaxUploadSize+1)
		_, err := store.SaveImage(ctx, "payments", bytes.NewReader(big), "big.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not exceed")
	})
}

func TestLocalStore_Delete(t *testing.T) {
	store := newStore(t, 0)
	rel, err := store.SaveImage(context.Background(), "payments", pngImage(t, 10, 10), "x.png")
	require.NoError(t, err)

	require.NoError(t, store.Delete(rel))
	_, err = os.Stat(filepath.Join(store.Root(), filepath.FromSlash(rel)))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete(rel), "already deleted")
	assert.NoError(t, store.Delete(""))
}
