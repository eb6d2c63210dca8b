package hostkey

import (
	"crypto/ed25519"
	"crypto/md5" //nolint:gosec // exercising the legacy fingerprint format
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func testHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

// TestParse tests fingerprint string parsing
func TestParse(t *testing.T) {
	digest := sha256.Sum256([]byte("host key material"))
	md5digest := md5.Sum([]byte("host key material")) //nolint:gosec

	md5Pairs := make([]string, len(md5digest))
	for i, b := range md5digest {
		md5Pairs[i] = hex.EncodeToString([]byte{b})
	}

	tests := []struct {
		name    string
		input   string
		wantAlg Algorithm
		wantErr bool
	}{
		{
			name:    "sha256 base64",
			input:   "SHA256:" + base64.RawStdEncoding.EncodeToString(digest[:]),
			wantAlg: SHA256,
		},
		{
			name:    "sha256 hex",
			input:   "SHA256:" + hex.EncodeToString(digest[:]),
			wantAlg: SHA256,
		},
		{
			name:    "md5 colon pairs",
			input:   "MD5:" + strings.Join(md5Pairs, ":"),
			wantAlg: MD5,
		},
		{
			name:    "unknown algorithm tag",
			input:   "SHA512:abcdef",
			wantErr: true,
		},
		{
			name:    "garbage value",
			input:   "SHA256:!!!not-a-digest!!!",
			wantErr: true,
		},
		{
			name:    "md5 wrong length",
			input:   "MD5:aa:bb",
			wantErr: true,
		},
		{
			name:    "no tag at all",
			input:   "aabbccdd",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAlg, fp.Algorithm)
		})
	}
}

// TestVerifySSH tests matching and mismatching SSH host keys
func TestVerifySSH(t *testing.T) {
	key := testHostKey(t)

	t.Run("sha256 match", func(t *testing.T) {
		fp, err := Parse(ssh.FingerprintSHA256(key))
		require.NoError(t, err)
		assert.NoError(t, fp.VerifySSH(key))
	})

	t.Run("md5 match", func(t *testing.T) {
		fp, err := Parse("MD5:" + ssh.FingerprintLegacyMD5(key))
		require.NoError(t, err)
		assert.NoError(t, fp.VerifySSH(key))
	})

	t.Run("mismatch", func(t *testing.T) {
		other := testHostKey(t)
		fp, err := Parse(ssh.FingerprintSHA256(other))
		require.NoError(t, err)
		err = fp.VerifySSH(key)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMismatch)
	})
}

// TestCallback tests the ssh.HostKeyCallback construction
func TestCallback(t *testing.T) {
	key := testHostKey(t)

	t.Run("pinned and matching", func(t *testing.T) {
		fp, err := Parse(ssh.FingerprintSHA256(key))
		require.NoError(t, err)

		cb := Callback(fp, nil)
		assert.NoError(t, cb("git.example.com:22", nil, key))
	})

	t.Run("pinned and mismatching", func(t *testing.T) {
		other := testHostKey(t)
		fp, err := Parse(ssh.FingerprintSHA256(other))
		require.NoError(t, err)

		cb := Callback(fp, nil)
		err = cb("git.example.com:22", nil, key)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMismatch)
	})

	t.Run("no pin reports unverified host", func(t *testing.T) {
		var reported string
		cb := Callback(nil, func(host string) { reported = host })

		require.NoError(t, cb("git.example.com:22", nil, key))
		assert.Equal(t, "git.example.com:22", reported, "TOFU must be observable, not silent")
	})
}
