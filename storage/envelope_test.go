package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/suilink/internal/util"
)

type record struct {
	Name string `json:"name"`
}

func TestSealOpen(t *testing.T) {
	key, err := util.RandomBytes(32)
	require.NoError(t, err)

	env, err := SealJSON(key, record{Name: "alice"}, []byte("aad"))
	require.NoError(t, err)
	assert.Equal(t, SchemeSealed, env.Scheme)
	assert.NotContains(t, string(env.Payload), "alice")

	var got record
	require.NoError(t, OpenJSON(key, env, []byte("aad"), &got))
	assert.Equal(t, "alice", got.Name)

	assert.Error(t, OpenJSON(key, env, []byte("other"), &got))
	assert.Error(t, OpenJSON(nil, env, []byte("aad"), &got))
}

func TestPlain(t *testing.T) {
	env, err := PlainJSON(record{Name: "bob"})
	require.NoError(t, err)

	var got record
	require.NoError(t, OpenJSON(nil, env, nil, &got))
	assert.Equal(t, "bob", got.Name)
}

func TestOpenRejectsUnknown(t *testing.T) {
	var got record
	assert.Error(t, OpenJSON(nil, &Envelope{Ver: 2, Scheme: SchemePlain}, nil, &got))
	assert.Error(t, OpenJSON(nil, &Envelope{Ver: 1, Scheme: "rot13"}, nil, &got))
}

func TestCloneEnvelope(t *testing.T) {
	env := &Envelope{Ver: 1, Scheme: SchemePlain, Payload: []byte("x")}
	cp := CloneEnvelope(env)
	cp.Payload[0] = 'y'
	assert.Equal(t, byte('x'), env.Payload[0])
	assert.Nil(t, CloneEnvelope(nil))
}
