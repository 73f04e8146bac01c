package xcpconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcp-project/xcp/pkg/xcpconst"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "xcp.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFillsDefaultsForUnsetFields(t *testing.T) {
	path := writeTemp(t, `
codec_policy = "BinaryRequired"
compression = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, xcpconst.PolicyBinaryRequired, cfg.CodecPolicy)
	assert.True(t, cfg.Compression)
	assert.Equal(t, uint32(xcpconst.DefaultMaxFrameBytes), cfg.MaxFrameBytes)
}

func TestLoadRejectsUnknownCodecPolicy(t *testing.T) {
	path := writeTemp(t, `codec_policy = "bogus"`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsFrameLargerThanAssembly(t *testing.T) {
	path := writeTemp(t, `
max_frame_bytes = 1000000
max_assembled_bytes = 100
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDecodesAEADKey(t *testing.T) {
	key := "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"
	path := writeTemp(t, `aead_static_key_hex = "`+key+`"`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.AEADStaticKey, 32)
}

func TestLoadRejectsShortAEADKey(t *testing.T) {
	path := writeTemp(t, `aead_static_key_hex = "0102"`)
	_, err := Load(path)
	assert.Error(t, err)
}
