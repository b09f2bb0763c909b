package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/scoring"
)

const (
	modelName        = "gemini-1.5-flash"
	maxIcebreakers   = 3
	genericOpener    = "Привет! Как проходит твоя неделя?"
	sharedTemplate   = "Вижу, ты тоже любишь %s. С чего у тебя это началось?"
	contrastTemplate = "У тебя в профиле %s, расскажешь, что в этом самое интересное?"
)

// Client writes icebreakers for new matches. A nil *Client is valid and
// always answers with the local fallback.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *zap.Logger
}

func NewClient(ctx context.Context, apiKey string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)

	return &Client{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// GenerateIcebreakers never fails: model errors and unparsable answers fall
// back to openers built from the two interest lists.
func (c *Client) GenerateIcebreakers(ctx context.Context, user1Interests, user2Interests []string) []string {
	if c == nil {
		return FallbackIcebreakers(user1Interests, user2Interests)
	}

	prompt := fmt.Sprintf(`
		Generate %d creative icebreaker messages for a dating app match.
		User 1 Interests: %v
		User 2 Interests: %v

		Task: Create %d distinct opening lines that User 1 could send to User 2.
		Focus on shared interests or interesting contrasts.
		Language: Russian.
		Output: JSON array of strings. Example: ["Hi...", "Hello..."]
	`, maxIcebreakers, user1Interests, user2Interests, maxIcebreakers)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Warn("gemini unavailable, using fallback icebreakers", zap.Error(err))
		return FallbackIcebreakers(user1Interests, user2Interests)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return FallbackIcebreakers(user1Interests, user2Interests)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	icebreakers, err := ParseIcebreakers(sb.String())
	if err != nil {
		c.logger.Warn("gemini answer not usable", zap.Error(err))
		return FallbackIcebreakers(user1Interests, user2Interests)
	}
	return icebreakers
}

// ParseIcebreakers reads a JSON array answer, tolerating markdown fences
// and plain line-per-item text.
func ParseIcebreakers(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var icebreakers []string
	if err := json.Unmarshal([]byte(text), &icebreakers); err != nil {
		icebreakers = icebreakers[:0]
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "[") && !strings.HasSuffix(line, "]") {
				icebreakers = append(icebreakers, line)
			}
		}
		if len(icebreakers) == 0 {
			return nil, fmt.Errorf("failed to parse icebreakers: %w", err)
		}
	}

	out := make([]string, 0, maxIcebreakers)
	for _, s := range icebreakers {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxIcebreakers {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty icebreaker list")
	}
	return out, nil
}

// FallbackIcebreakers builds openers from shared interests first, then from
// the second user's own interests, then a generic greeting.
func FallbackIcebreakers(user1Interests, user2Interests []string) []string {
	out := make([]string, 0, maxIcebreakers)
	for _, tag := range scoring.SharedInterests(user1Interests, user2Interests) {
		if len(out) == maxIcebreakers-1 {
			break
		}
		out = append(out, fmt.Sprintf(sharedTemplate, tag))
	}
	if len(out) == 0 {
		for _, tag := range user2Interests {
			if tag = strings.TrimSpace(tag); tag != "" {
				out = append(out, fmt.Sprintf(contrastTemplate, tag))
				break
			}
		}
	}
	return append(out, genericOpener)
}
