package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TStream/tools/errs"
)

func TestGenerateVerifyRoundtrip(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	token, exp, err := Generate(opts, 1234)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	uid, err := Verify(opts, token)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), uid)
}

func TestVerifyExpired(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))

	// exp 是秒级精度，1ns 的 TTL 签出来就是当前秒
	token, _, err := Generate(Options{Secret: opts.Secret, Alg: "HS256", TTL: time.Nanosecond}, 7)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond) // exp 秒级精度

	_, err = Verify(opts, token)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestVerifyTampered(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	token, _, err := Generate(opts, 7)
	require.NoError(t, err)

	_, err = Verify(opts, token+"x")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = Verify(DefaultOptions([]byte("other")), token)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = Verify(opts, "not-a-jwt")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAlgFamily(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512", "hs256"} {
		opts := Options{Secret: []byte("secret"), Alg: alg, TTL: time.Hour}
		token, _, err := Generate(opts, 9)
		require.NoError(t, err, alg)
		uid, err := Verify(opts, token)
		require.NoError(t, err, alg)
		assert.Equal(t, int64(9), uid)
	}

	_, _, err := Generate(Options{Secret: []byte("x"), Alg: "RS256"}, 9)
	assert.Error(t, err)
}
