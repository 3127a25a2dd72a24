package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/agentgate/internal/skills"
)

// SkillSearchTool lets the agent look up SKILL.md instructions by keyword
// instead of having every skill inlined in the system prompt — used once
// the loaded skill set is too large to inline (see resolveSkillsSummary).
type SkillSearchTool struct {
	loader *skills.Loader
}

func NewSkillSearchTool(loader *skills.Loader) *SkillSearchTool {
	return &SkillSearchTool{loader: loader}
}

func (t *SkillSearchTool) Name() string { return "skill_search" }
func (t *SkillSearchTool) Description() string {
	return "Search available skills by name or description keyword"
}
func (t *SkillSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Keyword to match against skill names and descriptions",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SkillSearchTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	if t.loader == nil {
		return ErrorResult("no skills are configured for this workspace")
	}
	query, _ := args["query"].(string)

	matches := t.loader.Search(query)
	if len(matches) == 0 {
		return NewResult("no matching skills found")
	}

	var sb strings.Builder
	for _, s := range matches {
		fmt.Fprintf(&sb, "- %s: %s (read with read_file: %s)\n", s.Name, s.Description, s.Path)
	}
	return NewResult(sb.String())
}
