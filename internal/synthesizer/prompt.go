package synthesizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/splitstack/support-assistant/internal/knowledge"
	"github.com/splitstack/support-assistant/internal/model"
)

// personaPreamble is the fixed product description and assistant persona
// embedded in every model call.
const personaPreamble = `You are the SplitStack support assistant. SplitStack is a consumer app for shared money: users hold a personal wallet, pool funds in savings groups with friends, earn rewards on activity, and can refer friends through the referral program.

Answer support questions clearly and concisely. Use the knowledge base entries below when they apply; do not invent product behavior that is not described there. If you cannot help, say so and suggest contacting human support.`

// buildSystemPrompt assembles the system prompt: persona, retrieved
// knowledge as Q/A pairs, and the caller's situational context.
func buildSystemPrompt(sctx model.SituationalContext, entries []knowledge.ScoredEntry, now time.Time) string {
	var b strings.Builder
	b.WriteString(personaPreamble)

	if len(entries) > 0 {
		b.WriteString("\n\nRelevant knowledge base entries:\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "\nQ: %s\nA: %s\n", e.Entry.Question, e.Entry.Answer)
		}
	}

	b.WriteString("\nCurrent context:\n")
	if sctx.CurrentPage != "" {
		fmt.Fprintf(&b, "- The user is on the %q page.\n", sctx.CurrentPage)
	}
	if sctx.Authenticated {
		b.WriteString("- The user is signed in.\n")
	} else {
		b.WriteString("- The user is not signed in.\n")
	}
	fmt.Fprintf(&b, "- Current time: %s.\n", now.Format(time.RFC1123))
	if sctx.RecentError != "" {
		fmt.Fprintf(&b, "- The user recently hit an error: %s\n", sctx.RecentError)
	}

	return b.String()
}
