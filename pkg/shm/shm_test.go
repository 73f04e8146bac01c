package shm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndBuildRoundTrip(t *testing.T) {
	raw := Build("agents", "tensor-7", 128, 4096)
	u, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "agents", u.Namespace)
	assert.Equal(t, "tensor-7", u.Name)
	assert.Equal(t, uint64(128), u.Offset)
	assert.Equal(t, uint64(4096), u.Size)
	assert.Equal(t, raw, u.String())
}

func TestParseRejectsMalformedURIs(t *testing.T) {
	cases := []string{
		"http://agents/name#0,10",
		"shm://agents/name",
		"shm://agentsname#0,10",
		"shm://agents/name#0",
		"shm://agents/name#x,10",
		"shm:///name#0,10",
	}
	for _, c := range cases {
		_, err := Parse(c)
		assert.Error(t, err, c)
	}
}

func TestMemStorePublishFetchRelease(t *testing.T) {
	s := NewMemStore("agents")
	defer s.Close()

	data := []byte("hello shared memory")
	uri, err := s.Publish(data, 0)
	require.NoError(t, err)

	got, err := s.Fetch(uri)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, s.Release(uri))
	_, err = s.Fetch(uri)
	assert.Error(t, err)
}

func TestMemStoreExpiry(t *testing.T) {
	s := NewMemStore("agents")
	defer s.Close()

	uri, err := s.Publish([]byte("short-lived"), 20*time.Millisecond)
	require.NoError(t, err)

	_, err = s.Fetch(uri)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := s.Fetch(uri)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestMemStoreFetchRangeOutOfBounds(t *testing.T) {
	s := NewMemStore("agents")
	defer s.Close()

	uri, err := s.Publish([]byte("abc"), 0)
	require.NoError(t, err)

	// Fetch with a manually widened size beyond the published region.
	u, err := Parse(uri)
	require.NoError(t, err)
	wide := Build(u.Namespace, u.Name, 0, u.Size+10)
	_, err = s.Fetch(wide)
	assert.Error(t, err)
}
