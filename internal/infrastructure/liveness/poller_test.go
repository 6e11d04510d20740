package liveness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct{ hosts []string }

func (s fixedSource) Hosts(ctx context.Context) ([]string, error) { return s.hosts, nil }

func TestPollOnceReportsAddedOnFirstPoll(t *testing.T) {
	var added []string
	p := NewPoller(fixedSource{hosts: []string{"10.0.0.1", "10.0.0.2"}},
		func(addr string) { added = append(added, addr) },
		func(addr string) { t.Fatalf("unexpected removal of %s", addr) },
	)
	require.NoError(t, p.PollOnce(context.Background()))
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, added)
}

func TestPollOnceReportsRemoved(t *testing.T) {
	src := &mutableSource{hosts: []string{"10.0.0.1", "10.0.0.2"}}
	var added, removed []string
	p := NewPoller(src,
		func(addr string) { added = append(added, addr) },
		func(addr string) { removed = append(removed, addr) },
	)
	require.NoError(t, p.PollOnce(context.Background()))
	added = nil

	src.hosts = []string{"10.0.0.1"}
	require.NoError(t, p.PollOnce(context.Background()))

	assert.Empty(t, added)
	assert.Equal(t, []string{"10.0.0.2"}, removed)
}

type mutableSource struct{ hosts []string }

func (s *mutableSource) Hosts(ctx context.Context) ([]string, error) { return s.hosts, nil }
