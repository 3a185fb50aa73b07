package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/plugin/ai/safety"
	"github.com/hrygo/chatturn/plugin/ai/timeout"
	"github.com/hrygo/chatturn/store"
)

// BlockSeverity is the lowest category severity that blocks a message.
const BlockSeverity = 4

const (
	reasonSeverity  = "Max severity >= 4"
	reasonBlocklist = "Blocklist match"
)

// Verdict is the outcome of screening one user message.
type Verdict struct {
	Blocked          bool
	MaxSeverity      int
	Reasons          []string
	Categories       []store.CategorySeverity
	BlocklistMatches []store.BlocklistMatch
}

// Evaluate applies the blocking rule: any category at BlockSeverity or above, or
// any blocklist match.
func Evaluate(a *safety.Analysis) *Verdict {
	v := &Verdict{}
	if a == nil {
		return v
	}
	v.Categories = a.Categories
	v.BlocklistMatches = a.BlocklistMatches
	v.MaxSeverity = a.MaxSeverity()
	if v.MaxSeverity >= BlockSeverity {
		v.Reasons = append(v.Reasons, reasonSeverity)
	}
	if len(a.BlocklistMatches) > 0 {
		v.Reasons = append(v.Reasons, reasonBlocklist)
	}
	v.Blocked = len(v.Reasons) > 0
	return v
}

// LogReason is the reason stored on the safety log.
func (v *Verdict) LogReason() string {
	return strings.Join(v.Reasons, "; ")
}

// Message is the user-facing content of the safety message.
func (v *Verdict) Message() string {
	var b strings.Builder
	b.WriteString("Your message was blocked by Content Safety.\n\n")
	fmt.Fprintf(&b, "**Reason**: %s\n", strings.Join(v.Reasons, ", "))
	b.WriteString("Triggered categories:\n")
	for _, c := range v.Categories {
		fmt.Fprintf(&b, " - %s (severity=%d)\n", c.Category, c.Severity)
	}
	if len(v.BlocklistMatches) > 0 {
		lines := make([]string, 0, len(v.BlocklistMatches))
		for _, m := range v.BlocklistMatches {
			lines = append(lines, fmt.Sprintf(" - %s (in %s)", m.BlocklistItemText, m.BlocklistName))
		}
		b.WriteString("\nBlocklist Matches:\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return strings.TrimSpace(b.String())
}

// Guard screens user messages before any retrieval or generation.
type Guard struct {
	checker safety.Checker
}

func NewGuard(checker safety.Checker) *Guard {
	return &Guard{checker: checker}
}

// Enabled reports whether a checker is configured.
func (g *Guard) Enabled() bool {
	return g != nil && g.checker != nil
}

// Check analyzes text. A checker error is returned as is; the caller decides
// whether to let the message through.
func (g *Guard) Check(ctx context.Context, text string) (*Verdict, error) {
	if !g.Enabled() {
		return &Verdict{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout.SafetyTimeout)
	defer cancel()
	analysis, err := g.checker.Analyze(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "content safety check failed")
	}
	return Evaluate(analysis), nil
}
