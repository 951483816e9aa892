package moderation

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Config tunes the scoring pipeline. Patterns are Go regular expressions;
// the protected-name list is product policy and deliberately lives in
// configuration rather than code.
type Config struct {
	// RateWindow and RateLimit bound chat sends per session.
	RateWindow time.Duration
	RateLimit  int

	// PIIPattern matches contact-detail-like substrings.
	PIIPattern string
	// SexualPattern matches sexual-content keywords.
	SexualPattern string
	// ProtectedPattern matches references to protected names.
	ProtectedPattern string
	// PolitePattern matches courteous phrasing.
	PolitePattern string

	// Deltas. Negative values are penalties.
	PIIDelta     int
	SexualDelta  int
	FlaggedDelta int
	AbuseDelta   int
	PoliteDelta  int

	// ProviderTimeout bounds each external classification call.
	ProviderTimeout time.Duration
}

// Outcome is the fully resolved consequence of one chat message.
type Outcome struct {
	// Delta is the signed credit adjustment for the sender.
	Delta int
	// Reason is the human-readable penalty (or bonus) explanation.
	Reason string
	// Severity drives delivery, termination, and banning.
	Severity Severity
	// RateLimited is set when the message was rejected before any scoring;
	// the caller sends a local warning and nothing else.
	RateLimited bool
}

// Pipeline evaluates chat text: rate limit, local pattern rules, external
// verdict, targeted-abuse rule, politeness bonus, critical-content rule.
type Pipeline struct {
	cfg      Config
	provider Provider
	limiter  *slidingLimiter
	logger   *zap.Logger

	piiRe       *regexp.Regexp
	sexualRe    *regexp.Regexp
	protectedRe *regexp.Regexp
	politeRe    *regexp.Regexp
}

// NewPipeline compiles the configured patterns and returns a ready
// Pipeline.
//
// Precondition: logger must be non-nil; provider may be nil, in which case
// every message is treated as unflagged.
// Postcondition: Returns a non-nil Pipeline or an error naming the first
// invalid pattern.
func NewPipeline(cfg Config, provider Provider, logger *zap.Logger) (*Pipeline, error) {
	p := &Pipeline{
		cfg:      cfg,
		provider: provider,
		limiter:  newSlidingLimiter(cfg.RateWindow, cfg.RateLimit),
		logger:   logger,
	}

	var err error
	if p.piiRe, err = compilePattern("pii", cfg.PIIPattern); err != nil {
		return nil, err
	}
	if p.sexualRe, err = compilePattern("sexual", cfg.SexualPattern); err != nil {
		return nil, err
	}
	if p.protectedRe, err = compilePattern("protected", cfg.ProtectedPattern); err != nil {
		return nil, err
	}
	if p.politeRe, err = compilePattern("polite", cfg.PolitePattern); err != nil {
		return nil, err
	}
	return p, nil
}

func compilePattern(name, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("moderation: compiling %s pattern: %w", name, err)
	}
	return re, nil
}

// Evaluate scores one chat message from the session.
//
// The provider call runs under ProviderTimeout and fails open: on error or
// timeout the message is treated as unflagged. Evaluate blocks for at most
// that timeout and must therefore be called off the registry lock.
//
// Postcondition: RateLimited outcomes carry no delta. A politeness bonus
// is only ever returned when no negative rule fired.
func (p *Pipeline) Evaluate(ctx context.Context, sessionID, text string) Outcome {
	if !p.limiter.allow(sessionID, time.Now()) {
		return Outcome{RateLimited: true}
	}

	// Cheap local rules short-circuit before any provider spend.
	if matches(p.piiRe, text) {
		return Outcome{
			Delta:    p.cfg.PIIDelta,
			Reason:   "Sharing contact details is not allowed",
			Severity: SeveritySevere,
		}
	}
	if matches(p.sexualRe, text) {
		return Outcome{
			Delta:    p.cfg.SexualDelta,
			Reason:   "Inappropriate language (keyword filter)",
			Severity: SeverityModerate,
		}
	}

	verdict := p.classify(ctx, sessionID, text)

	// Absolutely forbidden content wins over every other rule.
	if verdict.Categories.SexualMinors {
		return Outcome{
			Delta:    p.cfg.AbuseDelta,
			Reason:   "Forbidden content",
			Severity: SeverityCritical,
		}
	}

	if matches(p.protectedRe, text) && verdict.Categories.Abusive() {
		return Outcome{
			Delta:    p.cfg.AbuseDelta,
			Reason:   "Abusive reference to a protected person",
			Severity: SeveritySevere,
		}
	}

	if verdict.Flagged {
		return Outcome{
			Delta:    p.cfg.FlaggedDelta,
			Reason:   "Inappropriate language (moderation)",
			Severity: SeverityModerate,
		}
	}

	if matches(p.politeRe, text) {
		return Outcome{
			Delta:    p.cfg.PoliteDelta,
			Reason:   "Polite communication",
			Severity: SeverityNone,
		}
	}

	return Outcome{Severity: SeverityNone}
}

// classify runs the external provider, failing open on any error.
func (p *Pipeline) classify(ctx context.Context, sessionID, text string) Verdict {
	if p.provider == nil {
		return Verdict{}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	defer cancel()

	verdict, err := p.provider.Classify(ctx, text)
	if err != nil {
		p.logger.Warn("moderation provider failed, failing open",
			zap.String("session", sessionID),
			zap.Error(err),
		)
		return Verdict{}
	}
	return verdict
}

// Forget drops rate-limit state for a departed session.
func (p *Pipeline) Forget(sessionID string) {
	p.limiter.forget(sessionID)
}

func matches(re *regexp.Regexp, text string) bool {
	return re != nil && re.MatchString(text)
}
