package moderation

import "context"

// Categories are the content flags an external provider may set.
type Categories struct {
	Harassment   bool `json:"harassment"`
	Hate         bool `json:"hate"`
	Violence     bool `json:"violence"`
	Sexual       bool `json:"sexual"`
	SexualMinors bool `json:"sexual_minors"`
}

// Abusive reports whether the verdict carries a targeted-abuse category.
func (c Categories) Abusive() bool {
	return c.Harassment || c.Hate || c.Violence
}

// Verdict is the transient result of classifying one piece of text.
type Verdict struct {
	Flagged    bool       `json:"flagged"`
	Categories Categories `json:"categories"`
	Reason     string     `json:"reason"`
}

// Provider classifies chat text. Implementations may call out to a remote
// service and may fail; callers must treat any error as an unflagged
// verdict (fail open).
type Provider interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, text string) (Verdict, error)

// Classify calls the underlying function.
func (f ProviderFunc) Classify(ctx context.Context, text string) (Verdict, error) {
	return f(ctx, text)
}
