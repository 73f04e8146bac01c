// Package xcpconfig loads a session.Config from a TOML file, in the
// shape of the corpus's load-then-validate config pattern
// (danmuck-edgectl/internal/config.LoadGhostConfig): read the file,
// unmarshal into a plain struct, fill defaults for zero-valued fields,
// then validate before handing back a usable session.Config.
package xcpconfig

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/xcp-project/xcp/pkg/session"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

// File is the on-disk TOML shape (spec §6's configuration table).
type File struct {
	MaxFrameBytes         uint32 `toml:"max_frame_bytes"`
	MaxAssembledBytes     uint64 `toml:"max_assembled_bytes"`
	AssemblyTimeoutMS     uint64 `toml:"assembly_timeout_ms"`
	DupWindowSize         int    `toml:"dup_window_size"`
	CodecPolicy           string `toml:"codec_policy"`
	MaxInflightAssemblies int    `toml:"max_inflight_assemblies"`
	RetryBaseMS           uint64 `toml:"retry_base_ms"`
	RetryMaxAttempts      int    `toml:"retry_max_attempts"`
	Compression           bool   `toml:"compression"`
	AEADStaticKeyHex      string `toml:"aead_static_key_hex"`
	SharedMem             bool   `toml:"shared_mem"`
}

// Load reads and validates a TOML config file, returning a
// session.Config with unset fields filled from session.DefaultConfig.
func Load(path string) (session.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Config{}, fmt.Errorf("xcpconfig: reading %s: %w", path, err)
	}

	var f File
	if _, err := toml.Decode(string(data), &f); err != nil {
		return session.Config{}, fmt.Errorf("xcpconfig: parsing %s: %w", path, err)
	}

	cfg, err := f.toSessionConfig()
	if err != nil {
		return session.Config{}, fmt.Errorf("xcpconfig: %s: %w", path, err)
	}
	return cfg, nil
}

func (f File) toSessionConfig() (session.Config, error) {
	cfg := session.DefaultConfig()

	if f.MaxFrameBytes != 0 {
		cfg.MaxFrameBytes = f.MaxFrameBytes
	}
	if f.MaxAssembledBytes != 0 {
		cfg.MaxAssembledBytes = f.MaxAssembledBytes
	}
	if f.AssemblyTimeoutMS != 0 {
		cfg.AssemblyTimeoutMS = f.AssemblyTimeoutMS
	}
	if f.DupWindowSize != 0 {
		cfg.DupWindowSize = f.DupWindowSize
	}
	if f.MaxInflightAssemblies != 0 {
		cfg.MaxInflightAssemblies = f.MaxInflightAssemblies
	}
	if f.RetryBaseMS != 0 {
		cfg.RetryBaseMS = f.RetryBaseMS
	}
	if f.RetryMaxAttempts != 0 {
		cfg.RetryMaxAttempts = f.RetryMaxAttempts
	}
	cfg.Compression = f.Compression
	cfg.SharedMem = f.SharedMem

	if f.CodecPolicy != "" {
		policy, err := parseCodecPolicy(f.CodecPolicy)
		if err != nil {
			return session.Config{}, err
		}
		cfg.CodecPolicy = policy
	}

	if f.AEADStaticKeyHex != "" {
		key, err := decodeHexKey(f.AEADStaticKeyHex)
		if err != nil {
			return session.Config{}, err
		}
		cfg.AEADStaticKey = key
	}

	return cfg, Validate(cfg)
}

func parseCodecPolicy(s string) (xcpconst.CodecPolicy, error) {
	switch strings.ToLower(s) {
	case "auto":
		return xcpconst.PolicyAuto, nil
	case "jsononly", "json_only", "json-only":
		return xcpconst.PolicyJSONOnly, nil
	case "binaryrequired", "binary_required", "binary-required":
		return xcpconst.PolicyBinaryRequired, nil
	default:
		return "", fmt.Errorf("unknown codec_policy %q", s)
	}
}

func decodeHexKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("aead_static_key_hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("aead_static_key_hex must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Validate enforces the invariants spec §6 implies for its config knobs:
// MaxFrameBytes, MaxAssembledBytes, DupWindowSize and
// MaxInflightAssemblies must be positive, RetryMaxAttempts must not be
// negative, a set AEAD key must be 32 bytes, and MaxFrameBytes must not
// exceed MaxAssembledBytes (a single frame cannot outgrow the message it
// belongs to).
func Validate(cfg session.Config) error {
	if cfg.MaxFrameBytes == 0 {
		return fmt.Errorf("max_frame_bytes must be > 0")
	}
	if cfg.MaxAssembledBytes == 0 {
		return fmt.Errorf("max_assembled_bytes must be > 0")
	}
	if uint64(cfg.MaxFrameBytes) > cfg.MaxAssembledBytes {
		return fmt.Errorf("max_frame_bytes (%d) exceeds max_assembled_bytes (%d)", cfg.MaxFrameBytes, cfg.MaxAssembledBytes)
	}
	if cfg.DupWindowSize <= 0 {
		return fmt.Errorf("dup_window_size must be > 0")
	}
	if cfg.MaxInflightAssemblies <= 0 {
		return fmt.Errorf("max_inflight_assemblies must be > 0")
	}
	if cfg.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry_max_attempts must be >= 0")
	}
	if cfg.AEADStaticKey != nil && len(cfg.AEADStaticKey) != 32 {
		return fmt.Errorf("aead_static_key must be 32 bytes, got %d", len(cfg.AEADStaticKey))
	}
	return nil
}
