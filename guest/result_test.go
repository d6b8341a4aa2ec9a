package guest

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilationResultDoubleClose(t *testing.T) {
	r := NewCompilationResult([]byte("image"), []byte("symbols"))

	require.NoError(t, r.Close())
	assert.NotPanics(t, func() { _ = r.Close() })
	assert.NoError(t, r.Close())

	_, err := io.ReadAll(r.Image)
	assert.ErrorIs(t, err, ErrStreamClosed)
	_, err = r.Symbols.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestCompilationResultWithoutSymbols(t *testing.T) {
	r := NewCompilationResult([]byte("image"), nil)
	assert.Nil(t, r.SymbolReader())

	b, err := io.ReadAll(r.Image)
	require.NoError(t, err)
	assert.Equal(t, "image", string(b))
	assert.Equal(t, 5, r.Image.Size())
	assert.NoError(t, r.Close())
}
