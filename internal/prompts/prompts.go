// Package prompts holds the assistant's system instruction, canned
// conversation openers, and the prompt enrichment logic that attaches
// nearby-shelter context to an outgoing user message.
package prompts

import (
	"fmt"
	"strings"

	"github.com/garrellmacarilay/floodguard-agent/internal/shelters"
)

// SystemInstruction steers the model toward short, calm safety guidance.
const SystemInstruction = `You are FloodGuard AI, a specialized safety assistant for flood and disaster management.
Your tone should be calm, reassuring, and concise.
Prioritize clear instructions, evacuation guidance, and safety protocols.
Use bullet points for lists.
If a user asks about immediate life-threatening situations, advise them to contact emergency services (911 or local equivalent) immediately.
Do not provide medical advice.
Keep responses short and easy to read on mobile devices during emergencies.`

// Greeting opens every conversation before any channel is probed.
const Greeting = "Hello. I am FloodGuard AI. I can help you with flood risks, evacuation routes, and safety protocols. **How can I assist you right now?**"

// Readiness notices appended after channel initialization resolves.
const (
	ReadyRelay  = "**System Ready.** AI service is online via server. You can now ask me about flood safety and evacuation procedures."
	ReadyDirect = "**System Ready.** Direct AI connection established. You can now ask me about flood safety and evacuation procedures."
)

// QuickPromptLimit is the transcript length at and beyond which quick
// prompt suggestions are no longer offered.
const QuickPromptLimit = 3

var quickPrompts = []string{
	"Am I in a risk zone?",
	"Where is the nearest evacuation center?",
	"How to sandbag my door?",
	"Emergency hotline numbers",
}

// QuickPrompts returns suggested starter questions while a conversation
// is still short, and nil once the transcript reaches QuickPromptLimit
// turns.
func QuickPrompts(transcriptLen int) []string {
	if transcriptLen >= QuickPromptLimit {
		return nil
	}
	out := make([]string, len(quickPrompts))
	copy(out, quickPrompts)
	return out
}

// Build concatenates the user's text with a plain-text location context
// suffix listing each ranked shelter. With no candidates the text is
// returned unchanged.
func Build(userText string, ranked []shelters.Ranked) string {
	if len(ranked) == 0 {
		return userText
	}

	var b strings.Builder
	b.WriteString(userText)
	b.WriteString("\n\n[Location context: nearest evacuation centers to the user]\n")
	for _, r := range ranked {
		fmt.Fprintf(&b, "- %s, %s (%.2f km away, %s at %.6f,%.6f)\n",
			r.Name, r.City, r.DistanceKm, strings.ToLower(string(r.Status)),
			r.Location.Lat, r.Location.Lon)
	}
	return b.String()
}
