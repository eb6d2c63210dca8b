package gitsync

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soarsync/gitsync/internal/hostkey"
	"github.com/soarsync/gitsync/internal/transport"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "context"))

	wrapped := WrapError(ErrAuthFailed, "pushing to origin")
	assert.ErrorIs(t, wrapped, ErrAuthFailed)
	assert.Contains(t, wrapped.Error(), "pushing to origin")
}

func TestWrapErrorf(t *testing.T) {
	assert.NoError(t, WrapErrorf(nil, "attempt %d", 3))

	wrapped := WrapErrorf(ErrNetwork, "fetch failed after %d attempts", 3)
	assert.ErrorIs(t, wrapped, ErrNetwork)
	assert.Contains(t, wrapped.Error(), "after 3 attempts")
}

func TestPublicError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "fingerprint mismatch",
			err:  fmt.Errorf("verifying host: %w", hostkey.ErrMismatch),
			want: ErrFingerprintMismatch,
		},
		{
			name: "transport auth",
			err:  fmt.Errorf("%w: 401 unauthorized", transport.ErrAuth),
			want: ErrAuthFailed,
		},
		{
			name: "transport non fast forward",
			err:  fmt.Errorf("%w: ref moved", transport.ErrNonFastForward),
			want: ErrNonFastForward,
		},
		{
			name: "transport network",
			err:  fmt.Errorf("%w: connection refused", transport.ErrNetwork),
			want: ErrNetwork,
		},
		{
			name: "unclassified passes through",
			err:  errors.New("plain failure"),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := publicError(tt.err)
			if tt.want == nil {
				assert.Equal(t, tt.err, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}

	assert.NoError(t, publicError(nil))
}
