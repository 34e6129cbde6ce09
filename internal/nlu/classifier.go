package nlu

import (
	"context"
	log "log/slog"

	"luna/internal/intent"
)

// Fallback classifies text the grammar could not match.
type Fallback interface {
	Classify(ctx context.Context, text string) (intent.ParsedCommand, error)
}

type Classifier struct {
	parser   *Parser
	ranker   *Ranker
	fallback Fallback
}

func NewClassifier(p *Parser, r *Ranker, fb Fallback) *Classifier {
	return &Classifier{parser: p, ranker: r, fallback: fb}
}

func (c *Classifier) Parser() *Parser { return c.parser }
func (c *Classifier) Ranker() *Ranker { return c.ranker }

// Classify parses and ranks text. The fallback is consulted only when no
// grammar pattern matches.
func (c *Classifier) Classify(ctx context.Context, text string) intent.Classification {
	all := c.parser.ParseAll(text)
	if len(all) == 0 && c.fallback != nil && CleanText(text) != "" {
		cmd, err := c.fallback.Classify(ctx, text)
		switch {
		case err != nil:
			log.Warn("Fallback classifier failed", "err", err)
		case cmd.Intent != intent.Unknown:
			all = append(all, cmd)
		}
	}
	if len(all) == 0 {
		return c.ranker.Rank(intent.ParsedCommand{Intent: intent.Unknown, Text: text, Pattern: -1})
	}
	return c.ranker.Rank(all[0], all[1:]...)
}
