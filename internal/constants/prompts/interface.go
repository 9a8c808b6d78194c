package prompts

import (
	"strings"

	"github.com/xpanvictor/voxcap/pkg/assistant"
)

type PromptDefinition struct {
	Content string
	Version float32
}

type SYS_PROMPT struct {
	Intent         string
	CurrentVersion float32
	Items          map[float32]PromptDefinition // version-content
}

func (sp *SYS_PROMPT) GetVersion(version float32) (PromptDefinition, bool) {
	i, ok := sp.Items[version]
	return i, ok
}

func (sp *SYS_PROMPT) GetCurrentPrompt() PromptDefinition {
	return sp.Items[sp.CurrentVersion]
}

// Text is the prompt body with the source indentation removed.
func (pd PromptDefinition) Text() string {
	lines := strings.Split(strings.TrimSpace(pd.Content), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}

// ToMessage renders the prompt as a message of the given role.
func (pd PromptDefinition) ToMessage(role assistant.Role) assistant.AssistantMessage {
	return assistant.NewMessage(role, pd.Text())
}
