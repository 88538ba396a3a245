package enrichment

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castboard/internal/upstream"
)

type stubGraph struct {
	fid      int64
	found    bool
	fidErr   error
	casts    int
	castErr  error
	gotLimit int
}

func (s *stubGraph) FIDByAddress(context.Context, string) (int64, bool, error) {
	return s.fid, s.found, s.fidErr
}

func (s *stubGraph) RecentCasts(_ context.Context, _ int64, limit int) ([]upstream.Cast, error) {
	s.gotLimit = limit
	if s.castErr != nil {
		return nil, s.castErr
	}
	return make([]upstream.Cast, s.casts), nil
}

func TestFetchActivity(t *testing.T) {
	g := &stubGraph{fid: 7, found: true, casts: 12}
	f := NewActivityFetcher(g, 0, zerolog.Nop())

	score, err := f.FetchActivity(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 12, score)
	assert.Equal(t, DefaultActivityPageSize, g.gotLimit)
}

func TestFetchActivity_NoLinkedIdentity(t *testing.T) {
	f := NewActivityFetcher(&stubGraph{}, 50, zerolog.Nop())

	score, err := f.FetchActivity(context.Background(), owner)
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestFetchActivity_Bounded(t *testing.T) {
	f := NewActivityFetcher(&stubGraph{fid: 1, found: true, casts: 30}, 20, zerolog.Nop())

	score, err := f.FetchActivity(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 20, score)
}

func TestFetchActivity_Failures(t *testing.T) {
	tests := []struct {
		name  string
		graph *stubGraph
	}{
		{"identity lookup", &stubGraph{fidErr: errors.New("timeout")}},
		{"casts lookup", &stubGraph{fid: 1, found: true, castErr: errors.New("502")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewActivityFetcher(tt.graph, 100, zerolog.Nop())
			_, err := f.FetchActivity(context.Background(), owner)
			assert.ErrorIs(t, err, ErrEnrichmentUnavailable)
		})
	}
}
