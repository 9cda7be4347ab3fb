package planner

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/radicai/ad-agent-api/pkg/models"
)

//go:embed prompts/system.md prompts/user.md
var promptFS embed.FS

const briefPlaceholder = "{{brief}}"

// groundingInstruction follows the retrieved context in the user message.
const groundingInstruction = "IMPORTANT: Use only the verified features, price and trial length listed above. " +
	"If the brief mentions something not in the verified facts, leave it out. " +
	"Prefer headline styles and channels that performed well historically."

var (
	systemPrompt       = mustPrompt("prompts/system.md")
	userPromptTemplate = mustPrompt("prompts/user.md")
)

func mustPrompt(name string) string {
	data, err := promptFS.ReadFile(name)
	if err != nil {
		panic("planner: missing embedded prompt " + name)
	}
	return string(data)
}

// SystemPrompt returns the fixed system instruction.
func SystemPrompt() string { return systemPrompt }

// UserPrompt fills the user template with the brief as indented JSON.
func UserPrompt(brief *models.Brief) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(brief); err != nil {
		return "", fmt.Errorf("encode brief: %w", err)
	}
	return strings.Replace(userPromptTemplate, briefPlaceholder, strings.TrimRight(buf.String(), "\n"), 1), nil
}

// BuildMessages returns the system and user messages for one generation.
// A non-empty grounding block is appended to the user message together
// with the grounding instruction.
func BuildMessages(brief *models.Brief, grounding string) ([]models.ChatMessage, error) {
	user, err := UserPrompt(brief)
	if err != nil {
		return nil, err
	}
	if grounding != "" {
		user = user + "\n\n" + grounding + "\n\n" + groundingInstruction
	}
	return []models.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}, nil
}
