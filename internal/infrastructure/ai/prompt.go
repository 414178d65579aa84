package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
)

const summaryPromptTemplate = `
You are a UX session-summary AI.

You will receive an array of session events recorded from a website.
Each event contains timestamp, type, and data.

Event type meanings:
0 = DomContentLoaded
1 = Load
2 = FullSnapshot
3 = IncrementalSnapshot
4 = Meta
5 = Custom

IncrementalSnapshot data.source meanings:
2 = MouseInteraction
3 = Scroll
5 = Input
6 = TouchMove
7 = MediaInteraction

USER-BEHAVIOR sources: 2,3,5,6,7.

----------------------------------------------------

RULES

1. If the event list is empty, null, or contains no IncrementalSnapshot events with USER-BEHAVIOR sources, respond exactly:
"No user interaction events found. Unable to generate session summary."

2. Do NOT output your reasoning, analysis steps, or internal process.

3. Do NOT mention any tracking or recording technology.

4. Do NOT invent actions not supported by events.

5. Do NOT output raw JSON.

----------------------------------------------------

OUTPUT FORMAT ONLY

User Journey:
- ...

Key Interactions:
- ...

Friction Points:
- ...

Final Summary:
...

----------------------------------------------------

Now generate the summary from these session events:
%s
`

// PromptBuilder assembles token-budgeted prompts for the text model.
type PromptBuilder struct {
	tokenizer   *tiktoken.Tiktoken
	tokenBudget int
}

// NewPromptBuilder creates a prompt builder. The budget bounds the
// event payload interpolated into the summary prompt, not the prompt
// scaffolding itself.
func NewPromptBuilder(tokenBudget int) (*PromptBuilder, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get tokenizer: %w", err)
	}
	return &PromptBuilder{
		tokenizer:   enc,
		tokenBudget: tokenBudget,
	}, nil
}

func (b *PromptBuilder) countTokens(text string) int {
	return len(b.tokenizer.Encode(text, nil, nil))
}

// SummaryPrompt renders the session-summary prompt. Events are
// serialized one at a time and appended in order until the token
// budget is exhausted; later events are dropped rather than the prompt
// overflowing the model's context.
func (b *PromptBuilder) SummaryPrompt(events []replay.RecordedEvent) string {
	var sb strings.Builder
	sb.WriteByte('[')

	usedTokens := 0
	written := 0
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			continue
		}

		evTokens := b.countTokens(string(raw))
		if usedTokens+evTokens > b.tokenBudget {
			break
		}

		if written > 0 {
			sb.WriteByte(',')
		}
		sb.Write(raw)
		usedTokens += evTokens
		written++
	}
	sb.WriteByte(']')

	return fmt.Sprintf(summaryPromptTemplate, sb.String())
}

// TranslatePrompt renders the translation prompt for the opaque model.
func (b *PromptBuilder) TranslatePrompt(text, sourceLocale, targetLocale string) string {
	return fmt.Sprintf(
		"Translate the following text from %s to %s. Output only the translated text, nothing else.\n\n%s",
		sourceLocale, targetLocale, text,
	)
}
