package hashutil_test

import (
	"encoding/hex"
	"testing"

	"github.com/rohmanhakim/mapfreeze/pkg/hashutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"
)

func TestHashBytes_SHA256(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "simple string",
			data:     []byte("hello world"),
			expected: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
		{
			name:     "binary data",
			data:     []byte{0x1f, 0x8b, 0x08, 0x00, 0xff, 0xfe, 0xfd, 0xfc},
			expected: "9724a280b2879abd50ce377420de2d09bcfb2aa2e4962a06a017e6f8a0c06959",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := hashutil.HashBytes(tt.data, hashutil.HashAlgoSHA256)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHashBytes_BLAKE3(t *testing.T) {
	data := []byte("vector tile payload")

	result, err := hashutil.HashBytes(data, hashutil.HashAlgoBLAKE3)
	require.NoError(t, err)

	expectedHash := blake3.Sum256(data)
	assert.Equal(t, hex.EncodeToString(expectedHash[:]), result)
}

func TestHashBytes_UnsupportedAlgorithm(t *testing.T) {
	result, err := hashutil.HashBytes([]byte("test data"), "unsupported")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported hash algorithm")
	assert.Empty(t, result)
}

func TestHashBytes_Deterministic(t *testing.T) {
	data := []byte("deterministic test data")

	hash1, err1 := hashutil.HashBytes(data, hashutil.HashAlgoBLAKE3)
	hash2, err2 := hashutil.HashBytes(data, hashutil.HashAlgoBLAKE3)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, hash1, hash2)
}
