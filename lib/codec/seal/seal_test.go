package seal

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statekit/statekit/lib/codec"
)

func TestSealedRoundTrip(t *testing.T) {
	c := NewSealedCodec(codec.NewJSONCodec(), "correct horse battery staple")

	value := map[string]any{"token": "secret", "count": float64(3)}

	data, err := c.Serialize(value)
	require.NoError(t, err)

	// Ciphertext must not leak the plaintext.
	assert.NotContains(t, data, "secret")

	result, err := c.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, value, result)
}

func TestSealedUniqueCiphertext(t *testing.T) {
	c := NewSealedCodec(codec.NewJSONCodec(), "passphrase")

	first, err := c.Serialize("same value")
	require.NoError(t, err)
	second, err := c.Serialize("same value")
	require.NoError(t, err)

	// Fresh salt and nonce per write.
	assert.NotEqual(t, first, second)
}

func TestSealedWrongPassphrase(t *testing.T) {
	data, err := NewSealedCodec(codec.NewJSONCodec(), "right").Serialize("value")
	require.NoError(t, err)

	_, err = NewSealedCodec(codec.NewJSONCodec(), "wrong").Deserialize(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrDeserialize))
}

func TestSealedTamperDetection(t *testing.T) {
	c := NewSealedCodec(codec.NewJSONCodec(), "passphrase")

	data, err := c.Serialize("value")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = c.Deserialize(tampered)
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrDeserialize))
}

func TestSealedMalformedInput(t *testing.T) {
	c := NewSealedCodec(codec.NewJSONCodec(), "passphrase")

	for name, data := range map[string]string{
		"not base64": "%%%",
		"too short":  base64.StdEncoding.EncodeToString([]byte("short")),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Deserialize(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, codec.ErrDeserialize))
		})
	}
}
