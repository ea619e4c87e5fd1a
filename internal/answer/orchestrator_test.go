package answer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fridahub/retrieval-go/internal/errors"
)

// fakeBackend 按脚本返回结果：前failures次返回err，之后返回text
type fakeBackend struct {
	name     string
	failures int
	err      error
	text     string
	calls    int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Complete(_ context.Context, _ Request) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return f.text, nil
}

func transientErr() error {
	return apperrors.NewUpstreamUnavailable("backend", assertableErr{})
}

type assertableErr struct{}

func (assertableErr) Error() string { return "connection refused" }

func newTestOrchestrator(backends ...Backend) *Orchestrator {
	return NewOrchestrator(backends, 3, time.Millisecond)
}

func TestAnswerFirstBackendSucceeds(t *testing.T) {
	a := &fakeBackend{name: "mistral-large-latest", text: "ответ А"}
	b := &fakeBackend{name: "deepseek/deepseek-chat-v3-0324:free", text: "ответ Б"}

	orch := newTestOrchestrator(a, b)
	text, err := orch.Answer(context.Background(), Request{Kind: InputText, Query: "вопрос"})
	require.NoError(t, err)
	assert.Equal(t, "ответ А", text)
	assert.Equal(t, 1, a.calls)
	assert.Zero(t, b.calls)
}

func TestAnswerFailoverWithSubstitutionNotice(t *testing.T) {
	// A исчерпывает 3 попытки, B отвечает со второй
	a := &fakeBackend{name: "mistral-large-latest", failures: 10, err: transientErr()}
	b := &fakeBackend{name: "gpt-4o-mini", failures: 1, err: transientErr(), text: "ответ Б"}

	orch := newTestOrchestrator(a, b)
	text, err := orch.AnswerWith(context.Background(), Request{Kind: InputText, Query: "вопрос"}, "mistral-large-latest")
	require.NoError(t, err)

	assert.Equal(t, 3, a.calls)
	assert.Equal(t, 2, b.calls)
	assert.True(t, strings.HasPrefix(text,
		"<i>⚠️ Используется модель gpt-4o-mini, так как mistral-large-latest недоступна</i>\n\n"))
	assert.True(t, strings.HasSuffix(text, "ответ Б"))
}

func TestAnswerNoNoticeWithoutPreferred(t *testing.T) {
	a := &fakeBackend{name: "mistral-large-latest", failures: 10, err: transientErr()}
	b := &fakeBackend{name: "gpt-4o-mini", text: "ответ Б"}

	orch := newTestOrchestrator(a, b)
	text, err := orch.Answer(context.Background(), Request{Kind: InputText, Query: "вопрос"})
	require.NoError(t, err)
	assert.Equal(t, "ответ Б", text)
}

func TestAnswerAllBackendsExhausted(t *testing.T) {
	a := &fakeBackend{name: "mistral-large-latest", failures: 10, err: transientErr()}
	b := &fakeBackend{name: "gpt-4o-mini", failures: 10, err: transientErr()}

	orch := newTestOrchestrator(a, b)
	_, err := orch.Answer(context.Background(), Request{Kind: InputText, Query: "вопрос"})
	require.Error(t, err)

	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeAllBackendsUnavailable, appErr.Code)
	// последняя ошибка сохраняется в цепочке
	assert.ErrorContains(t, err, "не удалось получить ответ")
	assert.NotNil(t, appErr.Cause)
}

func TestAnswerNonTransientNotRetried(t *testing.T) {
	a := &fakeBackend{name: "mistral-large-latest", failures: 10,
		err: apperrors.NewBadRequest("неверный запрос")}
	b := &fakeBackend{name: "gpt-4o-mini", text: "ответ Б"}

	orch := newTestOrchestrator(a, b)
	text, err := orch.Answer(context.Background(), Request{Kind: InputText, Query: "вопрос"})
	require.NoError(t, err)

	// невосстановимая ошибка не повторяется, но следующий бэкенд всё равно пробуется
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, "ответ Б", text)
}

func TestAnswerUnknownPreferred(t *testing.T) {
	a := &fakeBackend{name: "mistral-large-latest", text: "ответ А"}

	orch := newTestOrchestrator(a)
	_, err := orch.AnswerWith(context.Background(), Request{Kind: InputText, Query: "вопрос"}, "llama-70b")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))
	assert.Zero(t, a.calls)
}

func TestAnswerPreferredNotTriedTwice(t *testing.T) {
	// preferred стоит последним в списке по умолчанию: он должен
	// переместиться в начало и не пробоваться повторно
	a := &fakeBackend{name: "mistral-large-latest", text: "ответ А"}
	b := &fakeBackend{name: "gpt-4o-mini", failures: 10, err: transientErr()}

	orch := newTestOrchestrator(a, b)
	_, err := orch.AnswerWith(context.Background(), Request{Kind: InputText, Query: "вопрос"}, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, 3, b.calls)
	assert.Equal(t, 1, a.calls)
}

func TestOrderForKeepsDefaultOrder(t *testing.T) {
	a := &fakeBackend{name: "a"}
	b := &fakeBackend{name: "b"}
	c := &fakeBackend{name: "c"}

	orch := newTestOrchestrator(a, b, c)
	order, err := orch.orderFor("b")
	require.NoError(t, err)

	names := make([]string, 0, len(order))
	for _, backend := range order {
		names = append(names, backend.Name())
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
}

func TestSystemPromptFallback(t *testing.T) {
	assert.Contains(t, systemPrompt(InputText), "Фрида")
	assert.Contains(t, systemPrompt(InputVoice), "голосового")
	assert.Contains(t, systemPrompt(InputCSV), "таблицы")
	assert.Equal(t, fallbackSystemPrompt, systemPrompt(InputKind("audio")))
}
