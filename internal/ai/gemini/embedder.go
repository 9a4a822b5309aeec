package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const embeddingDimensions int32 = 768

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder produces fixed-size embeddings for profile texts.
type Embedder struct {
	models contentEmbedder
	model  string
}

func newEmbedder(client *genai.Client, model string) *Embedder {
	e := &Embedder{model: model}
	if client != nil {
		e.models = client.Models
	}
	return e
}

// NewEmbedder builds an embedder on top of an initialized generator client.
func NewEmbedder(g *Generator, model string) *Embedder {
	if strings.TrimSpace(model) == "" {
		model = defaultEmbeddingModel
	}
	if g == nil {
		return &Embedder{model: model}
	}
	return newEmbedder(g.client, model)
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e == nil || e.models == nil {
		return nil, errors.New("gemini embedder is not initialized")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text must not be empty")
	}

	dims := embeddingDimensions
	resp, err := e.models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini api returned empty embedding")
	}

	return resp.Embeddings[0].Values, nil
}
