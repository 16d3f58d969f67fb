package render

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	appLog "calpost/internal/log"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	m.Run()
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript("hangul")
	require.NoError(t, err)
	assert.Equal(t, ScriptHangul, s)

	s, err = ParseScript("")
	require.NoError(t, err)
	assert.Equal(t, ScriptLatin, s)

	s, err = ParseScript(" Latin ")
	require.NoError(t, err)
	assert.Equal(t, ScriptLatin, s)

	_, err = ParseScript("klingon")
	assert.Error(t, err)
}

func TestResolveFont_LatinCoveredByGoRegular(t *testing.T) {
	assets := []FontAsset{{Name: "goregular", Data: goregular.TTF}}
	f, name, err := ResolveFont(ScriptLatin, assets)
	require.NoError(t, err)
	assert.Equal(t, "goregular", name)
	require.NotNil(t, f)
}

func TestResolveFont_HangulNotCoveredByGoRegular(t *testing.T) {
	// Go Regular has no Hangul glyphs; resolution must fail loudly
	// instead of silently rendering tofu.
	assets := []FontAsset{{Name: "goregular", Data: goregular.TTF}}
	_, _, err := ResolveFont(ScriptHangul, assets)
	require.Error(t, err)

	var fre *FontResolutionError
	require.ErrorAs(t, err, &fre)
	assert.Equal(t, ScriptHangul, fre.Script)
	assert.Equal(t, []string{"goregular"}, fre.Tried)
}

func TestResolveFont_SkipsUnparseableAsset(t *testing.T) {
	assets := []FontAsset{
		{Name: "garbage", Data: []byte("not a font")},
		{Name: "goregular", Data: goregular.TTF},
	}
	_, name, err := ResolveFont(ScriptLatin, assets)
	require.NoError(t, err)
	assert.Equal(t, "goregular", name)
}

func TestResolveFont_NoAssets(t *testing.T) {
	_, _, err := ResolveFont(ScriptLatin, nil)
	var fre *FontResolutionError
	require.ErrorAs(t, err, &fre)
}

func TestNewFaces(t *testing.T) {
	f, _, err := ResolveFont(ScriptLatin, []FontAsset{{Name: "goregular", Data: goregular.TTF}})
	require.NoError(t, err)

	faces, err := NewFaces(f)
	require.NoError(t, err)
	require.NotNil(t, faces.Title)
	require.NotNil(t, faces.Event)

	// The title face is larger than the event face.
	assert.Greater(t, faces.Title.Metrics().Ascent.Ceil(), faces.Event.Metrics().Ascent.Ceil())
}
