package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretStringRedactsNonEmptyValue(t *testing.T) {
	s := Secret("password123")
	require.Equal(t, "[REDACTED]", s.String())
}

func TestSecretStringPassesThroughEmptyValue(t *testing.T) {
	empty := Secret("")
	require.Equal(t, "", empty.String())
}

func TestSecretMarshalJSONRedacts(t *testing.T) {
	s := Secret("password123")
	data, err := s.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"[REDACTED]"`, string(data))
}

func TestSecretGormValueRedacts(t *testing.T) {
	s := Secret("password123")
	require.Equal(t, "[REDACTED]", s.GormValue(nil, nil))
}
