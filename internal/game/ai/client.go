// Package ai backs the moderation Provider and the NPC conversation
// Generator with the Anthropic API. Both surfaces are fallible by design:
// the moderation pipeline fails open and the chat handler falls back to a
// canned line, so nothing here may ever block message delivery.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/cory-johannsen/plaza/internal/game/moderation"
)

const moderationSystemPrompt = `You are a content moderation classifier for a multiplayer chat service.
Classify the user message and respond with ONLY a JSON object, no prose:
{"flagged": bool, "categories": {"harassment": bool, "hate": bool, "violence": bool, "sexual": bool, "sexual_minors": bool}, "reason": "short explanation"}`

// Client wraps the Anthropic API for moderation verdicts and NPC replies.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *zap.Logger
}

// NewClient creates a Client for the given API key and model.
//
// Precondition: apiKey and model must be non-empty; logger must be
// non-nil.
func NewClient(apiKey, model string, maxTokens int64, logger *zap.Logger) *Client {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Classify implements moderation.Provider.
//
// Postcondition: Returns a parsed Verdict or a non-nil error; callers
// treat any error as an unflagged verdict.
func (c *Client) Classify(ctx context.Context, text string) (moderation.Verdict, error) {
	out, err := c.complete(ctx, moderationSystemPrompt, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
	})
	if err != nil {
		return moderation.Verdict{}, fmt.Errorf("ai: classify: %w", err)
	}

	verdict, err := parseVerdict(out)
	if err != nil {
		return moderation.Verdict{}, fmt.Errorf("ai: classify: %w", err)
	}
	return verdict, nil
}

// Reply generates an in-character NPC response to an incoming private
// message.
//
// Precondition: npcName must be non-empty; history is the NPC's rolling
// memory, oldest first.
// Postcondition: Returns a single chat line or a non-nil error; callers
// fall back to a canned line on error.
func (c *Client) Reply(ctx context.Context, npcName, persona string, history []string, incoming string) (string, error) {
	system := fmt.Sprintf(
		"You are %s, a character in a small 3D plaza world. Stay in character and answer with one short, casual chat line. Never mention being an AI.",
		npcName,
	)
	if persona != "" {
		system += " Persona: " + persona
	}

	var prompt strings.Builder
	if len(history) > 0 {
		prompt.WriteString("Recent conversation:\n")
		for _, line := range history {
			prompt.WriteString(line)
			prompt.WriteByte('\n')
		}
		prompt.WriteByte('\n')
	}
	prompt.WriteString("Visitor says: ")
	prompt.WriteString(incoming)

	out, err := c.complete(ctx, system, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.String())),
	})
	if err != nil {
		return "", fmt.Errorf("ai: reply for %s: %w", npcName, err)
	}

	reply := strings.TrimSpace(out)
	if reply == "" {
		return "", fmt.Errorf("ai: reply for %s: empty completion", npcName)
	}
	return reply, nil
}

func (c *Client) complete(ctx context.Context, system string, messages []anthropic.MessageParam) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  messages,
	})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

// parseVerdict extracts the JSON verdict from a model completion,
// tolerating surrounding prose or markdown fences.
func parseVerdict(out string) (moderation.Verdict, error) {
	start := strings.IndexByte(out, '{')
	end := strings.LastIndexByte(out, '}')
	if start < 0 || end < start {
		return moderation.Verdict{}, fmt.Errorf("no JSON object in completion %q", out)
	}

	var verdict moderation.Verdict
	if err := json.Unmarshal([]byte(out[start:end+1]), &verdict); err != nil {
		return moderation.Verdict{}, fmt.Errorf("parsing verdict: %w", err)
	}
	return verdict, nil
}
