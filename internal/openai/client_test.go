package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockEmbeddingAPI mocks the embedding API
type MockEmbeddingAPI struct {
	mock.Mock
}

func (m *MockEmbeddingAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockChatAPI mocks the chat completion API
type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

func newTestClient(embeddings EmbeddingAPI, chat ChatAPI) *Client {
	return &Client{
		embeddings: embeddings,
		chat:       chat,
		dimensions: DefaultEmbeddingDimensions,
	}
}

func TestGenerateEmbedding_Success(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := newTestClient(api, nil)

	embedding := make([]float32, DefaultEmbeddingDimensions)
	api.On("CreateEmbeddings", mock.Anything, "hello").Return(embedding, nil)

	result, err := client.GenerateEmbedding(context.Background(), "hello")

	assert.NoError(t, err)
	assert.Len(t, result, DefaultEmbeddingDimensions)
	api.AssertExpectations(t)
}

func TestGenerateEmbedding_EmptyText(t *testing.T) {
	client := newTestClient(new(MockEmbeddingAPI), nil)

	_, err := client.GenerateEmbedding(context.Background(), "")

	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestGenerateEmbedding_WrongDimensions(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := newTestClient(api, nil)

	api.On("CreateEmbeddings", mock.Anything, "hello").Return(make([]float32, 42), nil)

	_, err := client.GenerateEmbedding(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestGenerateEmbedding_APIError(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := newTestClient(api, nil)

	api.On("CreateEmbeddings", mock.Anything, "hello").Return(nil, errors.New("rate limited"))

	_, err := client.GenerateEmbedding(context.Background(), "hello")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerateText_Success(t *testing.T) {
	chat := new(MockChatAPI)
	client := newTestClient(nil, chat)

	chat.On("CreateChatCompletion", mock.Anything, "system prompt", "user prompt").Return("answer", nil)

	text, err := client.GenerateText(context.Background(), "system prompt", "user prompt")

	assert.NoError(t, err)
	assert.Equal(t, "answer", text)
	chat.AssertExpectations(t)
}

func TestGenerateText_EmptyPrompt(t *testing.T) {
	client := newTestClient(nil, new(MockChatAPI))

	_, err := client.GenerateText(context.Background(), "system", "")

	assert.ErrorIs(t, err, ErrEmptyText)
}
