package service

import (
	"time"
)

// greeting returns the time-of-day salutation seeded as the first assistant
// message of a new conversation.
func greeting(now time.Time) string {
	var salutation string
	switch h := now.Hour(); {
	case h < 12:
		salutation = "Good morning!"
	case h < 18:
		salutation = "Good afternoon!"
	default:
		salutation = "Good evening!"
	}
	return salutation + " I'm the SplitStack assistant. I can help with your wallet, savings groups, rewards, and referrals. What can I do for you?"
}
