package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"golang.org/x/sync/errgroup"

	"github.com/threadscribe/threadscribe/internal/config"
)

const (
	bedrockMaxBatchSize = 96 // Cohere embed API limit
	bedrockConcurrency  = 8  // max simultaneous in-flight Bedrock requests
)

// BedrockClient wraps the AWS Bedrock runtime for embedding generation.
type BedrockClient struct {
	bedrock *bedrockruntime.Client
	modelID string
}

func NewBedrockClient(cfg config.BedrockConfig) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockClient{
		bedrock: bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.ModelID,
	}, nil
}

// cohereEmbedRequest is the Cohere Embed v4 API request format.
type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedBatch generates embeddings via Bedrock. Texts are split into
// sub-batches of bedrockMaxBatchSize with up to bedrockConcurrency requests
// in flight; each chunk writes into a pre-allocated slot.
func (c *BedrockClient) EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type chunk struct{ start, end int }
	var chunks []chunk
	for i := 0; i < len(texts); i += bedrockMaxBatchSize {
		chunks = append(chunks, chunk{i, min(i+bedrockMaxBatchSize, len(texts))})
	}

	chunkResults := make([][][]float32, len(chunks))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(bedrockConcurrency)

	for idx, ch := range chunks {
		eg.Go(func() error {
			embeddings, err := c.embedSingle(egCtx, texts[ch.start:ch.end], inputType)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", idx, err)
			}
			chunkResults[idx] = embeddings
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	results := make([][]float32, 0, len(texts))
	for _, r := range chunkResults {
		results = append(results, r...)
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(results), len(texts))
	}
	return results, nil
}

func (c *BedrockClient) embedSingle(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	body, err := json.Marshal(cohereEmbedRequest{Texts: texts, InputType: inputType})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	out, err := c.bedrock.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		ContentType: strPtr("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}

	var resp cohereEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp.Embeddings, nil
}

func (c *BedrockClient) ModelID() string {
	return c.modelID
}

func strPtr(s string) *string { return &s }
