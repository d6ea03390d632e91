package storage

import (
	"path"
	"strings"

	"github.com/prn-tf/cinelog/internal/pkg/crypto"
)

// PathConfig holds configuration for storage key generation.
type PathConfig struct {
	// ShardLevels is the number of directory levels for sharding.
	// Default: 2 (e.g., ab/cd/abcdef...)
	ShardLevels int

	// ShardWidth is the number of characters per shard level.
	// Default: 2 (e.g., ab, cd)
	ShardWidth int
}

// DefaultPathConfig returns the default path configuration.
func DefaultPathConfig() PathConfig {
	return PathConfig{
		ShardLevels: 2,
		ShardWidth:  2,
	}
}

// ComputeKey generates the slash separated storage key for a content hash.
// Uses directory sharding to distribute files across directories.
//
// Example with default config (2 levels, 2 chars each):
//
//	hash: "abcdef1234567890..."
//	ext:  "PNG"
//	result: "ab/cd/abcdef1234567890....png"
func ComputeKey(config PathConfig, contentHash, ext string) string {
	name := contentHash + NormalizeExt(ext)

	minLength := config.ShardLevels * config.ShardWidth
	if len(contentHash) < minLength {
		return name
	}

	components := make([]string, 0, config.ShardLevels+1)
	offset := 0
	for i := 0; i < config.ShardLevels; i++ {
		components = append(components, contentHash[offset:offset+config.ShardWidth])
		offset += config.ShardWidth
	}
	components = append(components, name)

	return path.Join(components...)
}

// NormalizeExt lowercases ext and prefixes a dot. Extensions containing
// anything but ASCII letters and digits, or longer than 8 characters, are dropped.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" || len(ext) > 8 {
		return ""
	}
	for _, c := range ext {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return "." + ext
}

// ValidateKey reports whether key has the shape produced by ComputeKey with config.
func ValidateKey(config PathConfig, key string) bool {
	dir, name := path.Split(key)
	hash, ext, _ := strings.Cut(name, ".")
	if !crypto.ValidateSHA256(hash) {
		return false
	}
	if ext != "" && NormalizeExt(ext) != "."+ext {
		return false
	}
	return ComputeKey(config, hash, ext) == path.Clean(dir+name)
}
