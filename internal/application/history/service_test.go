package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/biosight/internal/application"
	domain "github.com/bryanwahyu/biosight/internal/domain/analysis"
	"github.com/bryanwahyu/biosight/internal/infra/codec"
)

const key = "0123456789abcdef0123456789abcdef"

type memRecords struct {
	rows []*domain.Record
	err  error
}

func (m *memRecords) Save(_ context.Context, r *domain.Record) error {
	m.rows = append(m.rows, r)
	return nil
}

func (m *memRecords) Latest(_ context.Context, hash string, limit int) ([]*domain.Record, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Record
	for _, r := range m.rows {
		if r.SessionHash == hash {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRecords) OwnsImage(context.Context, string, string) (bool, error) { return false, nil }

type countingObserver struct{ n int }

func (c *countingObserver) BestEffort(context.Context, application.Outcome) { c.n++ }

func TestGetHistoryReturnsFiveNewestDecrypted(t *testing.T) {
	c, err := codec.New(key)
	require.NoError(t, err)
	recs := &memRecords{}
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		blob, err := c.Encrypt(fmt.Sprintf("result-%d", i))
		require.NoError(t, err)
		require.NoError(t, recs.Save(context.Background(), &domain.Record{
			ID: domain.RecordID(fmt.Sprint(i)), SessionHash: "h", ImageRef: fmt.Sprintf("%d.jpg", i),
			EncryptedInterpretation: blob, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// another session's row never leaks
	blob, _ := c.Encrypt("foreign")
	_ = recs.Save(context.Background(), &domain.Record{ID: "f", SessionHash: "other", EncryptedInterpretation: blob, CreatedAt: base.Add(time.Hour)})

	svc := &Service{Records: recs, Codec: c}
	got, err := svc.GetHistory(context.Background(), "h", 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("result-%d", 6-i), e.Interpretation)
		assert.Equal(t, fmt.Sprintf("%d.jpg", 6-i), e.ImagePath)
	}
}

func TestGetHistorySkipsUndecryptableRows(t *testing.T) {
	c, err := codec.New(key)
	require.NoError(t, err)
	good, _ := c.Encrypt("fine")
	recs := &memRecords{rows: []*domain.Record{
		{ID: "1", SessionHash: "h", EncryptedInterpretation: []byte("garbage"), CreatedAt: time.Unix(2, 0)},
		{ID: "2", SessionHash: "h", EncryptedInterpretation: good, CreatedAt: time.Unix(1, 0)},
	}}
	obs := &countingObserver{}

	got, err := (&Service{Records: recs, Codec: c, Observer: obs}).GetHistory(context.Background(), "h", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fine", got[0].Interpretation)
	assert.Equal(t, 1, obs.n)
}

func TestGetHistoryEmptyWhenStoreUnavailable(t *testing.T) {
	got, err := (&Service{}).GetHistory(context.Background(), "h", 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetHistoryQueryFailure(t *testing.T) {
	svc := &Service{Records: &memRecords{err: errors.New("gone")}}
	_, err := svc.GetHistory(context.Background(), "h", 5)
	assert.ErrorIs(t, err, domain.ErrHistoryUnavailable)
}
