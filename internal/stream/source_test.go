package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatmerge/internal/dao/memorydao"
	"chatmerge/internal/domain"
)

func seedChat(t *testing.T, count int) *memorydao.MemoryDAO {
	t.Helper()
	d := memorydao.New(memorydao.NewVFS(), domain.Dataset{UUID: domain.NewDatasetID()}, "root")
	msgs := make([]domain.Message, count)
	for i := range msgs {
		msgs[i] = domain.Message{
			ID:             domain.InternalID(i + 1),
			SourceIDOption: domain.SourceID(i + 1),
			Timestamp:      domain.Timestamp(i + 1),
			FromID:         1,
			Typed:          domain.Typed{Kind: domain.TypedRegular, Text: []domain.RichTextElement{domain.MakePlain("m")}},
		}
	}
	users := []domain.User{{ID: 1, IsMyself: true}}
	chat := domain.Chat{ID: 1, Type: domain.ChatTypePersonal, MemberIDs: []domain.UserID{1}, MsgCount: count}
	d.Seed(users, 1, []domain.Chat{chat}, map[domain.ChatID][]domain.Message{1: msgs})
	return d
}

func TestSourceIteratesAllMessagesAcrossBatches(t *testing.T) {
	d := seedChat(t, 5)
	src := New(d, 1, 2)

	var got []domain.SourceID
	for {
		m, ok, err := src.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, m.SourceIDOption)
	}
	assert.Equal(t, []domain.SourceID{1, 2, 3, 4, 5}, got)
}

func TestSourceNextBatchReturnsWholeBatches(t *testing.T) {
	d := seedChat(t, 5)
	src := New(d, 1, 2)

	var sizes []int
	for {
		batch, err := src.NextBatch(context.Background())
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestSourceExactMultipleOfBatchSize(t *testing.T) {
	d := seedChat(t, 4)
	src := New(d, 1, 2)

	total := 0
	for {
		batch, err := src.NextBatch(context.Background())
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		total += len(batch)
	}
	assert.Equal(t, 4, total)
}

func TestSourceRestartsAfterAnchor(t *testing.T) {
	d := seedChat(t, 5)
	first := New(d, 1, 2)

	// потребляем три сообщения
	for i := 0; i < 3; i++ {
		_, ok, err := first.Next(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
	}
	anchor, ok := first.Anchor()
	require.True(t, ok)

	// NewAfter не включает сам anchor в выдачу; anchor после трёх Next -
	// последнее сообщение дочитанного пакета, то есть четвёртое
	resumed := NewAfter(d, 1, anchor, 2)
	var got []domain.SourceID
	for {
		m, ok, err := resumed.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, m.SourceIDOption)
	}
	assert.Equal(t, []domain.SourceID{5}, got)
}

func TestSourceEmptyChat(t *testing.T) {
	d := seedChat(t, 0)
	src := New(d, 1, 2)

	_, ok, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
