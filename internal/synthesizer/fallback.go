package synthesizer

import (
	"fmt"
	"strings"

	"github.com/splitstack/support-assistant/internal/knowledge"
	"github.com/splitstack/support-assistant/internal/model"
)

// Canned answers for the deterministic fallback. These are fixed text: the
// UI and tests rely on them verbatim.
const (
	fallbackErrorAnswer = `Sorry you ran into a problem. A few things that usually help:

1. Pull down to refresh, or close and reopen the app.
2. Check that you are on the latest app version.
3. Make sure you have a working internet connection.

If the problem keeps happening, tell me what you were doing when it occurred and I can help further, or I can connect you with our support team.`

	fallbackRecentErrorAnswer = `I can see something went wrong just now - sorry about that. The error has been noted on our side.

Usually a refresh or reopening the app clears it up. If it happens again, let me know exactly what you were trying to do and I will help you sort it out or hand you over to our support team.`

	fallbackWalletAnswer = `Here is how to add funds to your wallet:

1. Open the Wallet tab.
2. Tap "Add funds".
3. Choose a funding source (linked bank account or card).
4. Enter the amount and confirm.

Deposits from a linked bank account usually arrive within minutes, though they can take up to one business day. Card top-ups are instant.`

	fallbackGroupsAnswer = `Savings groups let you pool money with friends. To create one:

1. Go to the Groups tab and tap "New group".
2. Name the group and set a savings goal (optional).
3. Invite friends by username or share the invite link.

To join a group, open an invite link from a friend or accept a pending invite under Groups > Invites.`

	fallbackReferralAnswer = `Our referral program rewards you for inviting friends:

1. Open Profile > Invite friends to find your personal referral link.
2. Share the link. When a friend signs up and makes their first deposit, you both earn a referral bonus.
3. Track your referral earnings under Rewards.

There is no limit on how many friends you can refer.`

	fallbackRewardsAnswer = `You earn rewards for regular activity on SplitStack:

- Weekly deposits into your wallet or groups earn reward points.
- Hitting group savings goals earns a bonus for every member.
- Points can be redeemed under the Rewards tab.

Point balances update within a few minutes of qualifying activity.`

	fallbackHelpAnswer = `Hi! I can help with questions about your wallet and deposits, savings groups, rewards, the referral program, and account or technical issues. What would you like to know?`

	fallbackTriageAnswer = `I'm not sure I caught that, but here is what I can help with:

- Wallet: adding funds, withdrawals, transaction questions
- Groups: creating, joining, and managing savings groups
- Rewards: earning and redeeming points
- Referrals: inviting friends and referral bonuses
- Account & technical issues

Try asking about one of those, or ask to talk to our support team.`
)

// intentRule maps substring markers in the lowercased user message to a
// canned answer. First matching rule wins.
type intentRule struct {
	markers []string
	answer  string
}

var intentRules = []intentRule{
	{[]string{"error", "bug", "broken", "crash", "not working", "doesn't work", "failed"}, fallbackErrorAnswer},
	{[]string{"wallet", "deposit", "add funds", "add money", "top up", "withdraw"}, fallbackWalletAnswer},
	{[]string{"group", "pool", "circle"}, fallbackGroupsAnswer},
	{[]string{"referral", "refer", "invite"}, fallbackReferralAnswer},
	{[]string{"reward", "points", "bonus"}, fallbackRewardsAnswer},
	{[]string{"help", "hello"}, fallbackHelpAnswer},
}

// shortMessageLimit: very short messages with no matched intent get the
// generic help answer rather than the triage list.
const shortMessageLimit = 4

// fallbackReply is the deterministic rule-based reply used when no model is
// configured or the model call failed. Returns the reply and whether
// knowledge base content was used.
func fallbackReply(userMessage string, sctx model.SituationalContext, entries []knowledge.ScoredEntry) (string, bool) {
	msg := strings.ToLower(strings.TrimSpace(userMessage))

	for _, rule := range intentRules {
		for _, marker := range rule.markers {
			if !strings.Contains(msg, marker) {
				continue
			}
			if rule.answer == fallbackErrorAnswer && sctx.RecentError != "" {
				return fallbackRecentErrorAnswer, false
			}
			return rule.answer, false
		}
	}

	if len(strings.Fields(msg)) <= shortMessageLimit && msg != "" {
		return fallbackHelpAnswer, false
	}

	if len(entries) > 0 {
		return knowledgeLeadReply(entries), true
	}

	return fallbackTriageAnswer, false
}

// knowledgeLeadReply leads with the top entry's answer and appends up to
// two further retrieved questions as suggestions.
func knowledgeLeadReply(entries []knowledge.ScoredEntry) string {
	var b strings.Builder
	b.WriteString(entries[0].Entry.Answer)

	related := entries[1:]
	if len(related) > 2 {
		related = related[:2]
	}
	if len(related) > 0 {
		b.WriteString("\n\nYou might also be wondering:")
		for _, e := range related {
			fmt.Fprintf(&b, "\n- %s", e.Entry.Question)
		}
	}
	return b.String()
}
