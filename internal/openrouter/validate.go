package openrouter

import (
	"context"
	"errors"
)

// validateMaxTokens caps the probe's output so a validation run stays cheap.
const validateMaxTokens = 5

// ValidationResult reports whether a model accepted a minimal request.
type ValidationResult struct {
	ModelID string `json:"model_id"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ValidateModel sends a minimal capped prompt to the model and reports
// success or a human-readable failure message. The provider's structured
// error detail is preferred over a raw HTTP error body.
func (c *Client) ValidateModel(ctx context.Context, modelID string) ValidationResult {
	req := chatRequest{
		Model:     modelID,
		Messages:  []Message{{Role: RoleUser, Content: "Hi"}},
		Stream:    true,
		MaxTokens: validateMaxTokens,
	}

	_, _, err := c.streamOnce(ctx, req, nil)
	if err == nil {
		return ValidationResult{ModelID: modelID, OK: true}
	}

	msg := err.Error()
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}

	return ValidationResult{ModelID: modelID, OK: false, Message: msg}
}

// ValidateModels probes a set of model ids in order.
func (c *Client) ValidateModels(ctx context.Context, modelIDs []string) []ValidationResult {
	results := make([]ValidationResult, 0, len(modelIDs))
	for _, id := range modelIDs {
		results = append(results, c.ValidateModel(ctx, id))
	}
	return results
}
