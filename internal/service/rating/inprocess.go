package rating

import (
	"context"
	"encoding/json"

	"github.com/kapu/persona-globe-go/internal/client"
	"github.com/kapu/persona-globe-go/internal/domain"
)

// InProcessClient lets the server-side engine use the rating service
// without an HTTP round trip.
type InProcessClient struct {
	svc *Service
}

func NewInProcessClient(svc *Service) *InProcessClient {
	return &InProcessClient{svc: svc}
}

func (c *InProcessClient) Rank(ctx context.Context, req client.RankRequest) (*client.RankResponse, error) {
	attachments := make([]domain.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, domain.Attachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Content:     a.Content,
			IsDataURL:   a.IsDataURL,
		})
	}

	results, _, err := c.svc.Rank(ctx, RankInput{
		Idea:        req.Idea,
		MaxPersonas: req.MaxPersonas,
		Attachments: attachments,
	})
	if err != nil {
		return nil, err
	}

	resp := &client.RankResponse{Results: make([]json.RawMessage, 0, len(results))}
	for _, r := range results {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, raw)
	}
	return resp, nil
}
