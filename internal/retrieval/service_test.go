package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fridahub/retrieval-go/internal/storage"
	"github.com/fridahub/retrieval-go/internal/storage/models"
	"github.com/fridahub/retrieval-go/internal/vectorstore"
)

// fakeCollection 固定命中列表的集合
type fakeCollection struct {
	hits      []vectorstore.SearchHit
	searchErr error
	loadCalls int
	released  bool
	closed    bool
	seenQuery string
	seenLimit int
}

func (f *fakeCollection) Search(_ context.Context, queryText string, _ []string, limit int) ([]vectorstore.SearchHit, error) {
	f.seenQuery = queryText
	f.seenLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeCollection) Load(context.Context) error    { f.loadCalls++; return nil }
func (f *fakeCollection) Release(context.Context) error { f.released = true; return nil }
func (f *fakeCollection) Close() error                  { f.closed = true; return nil }

// fakeResolver 哈希到全文与历史
type fakeResolver struct {
	texts    map[string]storage.TopicText
	turns    []models.DialogueLog
	seenIDs  []string
	seenUser int64
}

func (f *fakeResolver) GetTextsByIDs(ids []string) ([]storage.TopicText, error) {
	f.seenIDs = ids
	var out []storage.TopicText
	for _, id := range ids {
		if text, ok := f.texts[id]; ok {
			out = append(out, text)
		}
	}
	return out, nil
}

func (f *fakeResolver) GetRecentTurns(userID int64, _ int) ([]models.DialogueLog, error) {
	f.seenUser = userID
	return f.turns, nil
}

func serviceFor(collection *fakeCollection, resolver *fakeResolver) *Service {
	return NewService(func(context.Context) (Collection, error) {
		return collection, nil
	}, resolver)
}

func TestSearchAssemblesContext(t *testing.T) {
	collection := &fakeCollection{hits: []vectorstore.SearchHit{
		{ID: "h1", Score: 0.9},
		{ID: "h2", Score: 0.7},
	}}
	resolver := &fakeResolver{texts: map[string]storage.TopicText{
		"h1": {BookName: "HR", Text: "Отпуск оформляется за две недели.", URL: "http://wiki/1"},
		"h2": {BookName: "IT", Text: "VPN настраивается через портал.", URL: "http://wiki/2"},
	}}

	result, err := serviceFor(collection, resolver).SearchWithoutHistory(context.Background(), "как оформить отпуск")
	require.NoError(t, err)

	assert.True(t, result.Found)
	assert.Equal(t, []string{"h1", "h2"}, result.MatchedIDs)
	assert.Equal(t,
		" Контекст 1: HR Отпуск оформляется за две недели.  URL: http://wiki/1"+
			" Контекст 2: IT VPN настраивается через портал.  URL: http://wiki/2",
		result.Context)
	assert.Empty(t, result.History)

	// ресурсы освобождаются после каждого запроса
	assert.Equal(t, 1, collection.loadCalls)
	assert.True(t, collection.released)
	assert.True(t, collection.closed)
}

func TestSearchZeroHits(t *testing.T) {
	collection := &fakeCollection{}
	resolver := &fakeResolver{}

	result, err := serviceFor(collection, resolver).SearchWithoutHistory(context.Background(), "нет такого")
	require.NoError(t, err, "zero hits is not an error")
	assert.False(t, result.Found)
	assert.Empty(t, result.Context)
	assert.Empty(t, result.MatchedIDs)
	assert.True(t, collection.closed)
}

func TestSearchWithHistory(t *testing.T) {
	collection := &fakeCollection{hits: []vectorstore.SearchHit{{ID: "h1"}}}
	resolver := &fakeResolver{
		texts: map[string]storage.TopicText{
			"h1": {BookName: "HR", Text: "текст", URL: "http://wiki/1"},
		},
		turns: []models.DialogueLog{
			{Query: "первый вопрос", Response: "первый ответ"},
			{Query: "второй вопрос", Response: "второй ответ"},
		},
	}

	result, err := serviceFor(collection, resolver).SearchWithHistory(context.Background(), "вопрос", 555)
	require.NoError(t, err)

	assert.Equal(t, int64(555), resolver.seenUser)
	assert.Equal(t,
		"История вашего диалога: "+
			"1) Запрос пользователя: первый вопрос | Твой ответ: первый ответ "+
			"2) Запрос пользователя: второй вопрос | Твой ответ: второй ответ ",
		result.History)
}

func TestSearchReleasesOnError(t *testing.T) {
	collection := &fakeCollection{searchErr: fmt.Errorf("milvus down")}
	resolver := &fakeResolver{}

	_, err := serviceFor(collection, resolver).SearchWithoutHistory(context.Background(), "вопрос")
	require.Error(t, err)
	assert.True(t, collection.released)
	assert.True(t, collection.closed)
}

func TestSearchUsesDefaultLimit(t *testing.T) {
	collection := &fakeCollection{}
	_, err := serviceFor(collection, &fakeResolver{}).SearchWithoutHistory(context.Background(), "вопрос")
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, collection.seenLimit)
	assert.Equal(t, "вопрос", collection.seenQuery)
}
