package skills

//go:generate cp ../../prompts/skills/manifest.yaml manifest.yaml
//go:generate cp ../../prompts/skills/safety.md safety.md
//go:generate cp ../../prompts/skills/pdd.md pdd.md
//go:generate cp ../../prompts/skills/code_task_generator.md code_task_generator.md
//go:generate cp ../../prompts/skills/code_assist.md code_assist.md
//go:generate cp ../../prompts/skills/conflict_resolver.md conflict_resolver.md
//go:generate cp ../../prompts/skills/codebase_summary.md codebase_summary.md

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed manifest.yaml
var embeddedManifest string

//go:embed safety.md
var embeddedSafety string

//go:embed pdd.md
var embeddedPDD string

//go:embed code_task_generator.md
var embeddedCodeTaskGenerator string

//go:embed code_assist.md
var embeddedCodeAssist string

//go:embed conflict_resolver.md
var embeddedConflictResolver string

//go:embed codebase_summary.md
var embeddedCodebaseSummary string

// skillFiles maps a manifest entry's File to its embedded content.
var skillFiles = map[string]string{
	"safety.md":              embeddedSafety,
	"pdd.md":                 embeddedPDD,
	"code_task_generator.md": embeddedCodeTaskGenerator,
	"code_assist.md":         embeddedCodeAssist,
	"conflict_resolver.md":   embeddedConflictResolver,
	"codebase_summary.md":    embeddedCodebaseSummary,
}

// LoadManifest parses the embedded manifest YAML.
func LoadManifest() (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal([]byte(embeddedManifest), &manifest); err != nil {
		return nil, fmt.Errorf("skills: parse manifest: %w", err)
	}
	return &manifest, nil
}

// LoadSkills loads every skill named in manifest from its embedded
// content, sorted by priority.
func LoadSkills(manifest *Manifest) ([]Skill, error) {
	loaded := make([]Skill, 0, len(manifest.Skills))
	for _, entry := range manifest.Skills {
		content, ok := skillFiles[entry.File]
		if !ok {
			return nil, fmt.Errorf("skills: file %q not found for skill %q", entry.File, entry.Name)
		}
		loaded = append(loaded, Skill{Entry: entry, Content: content})
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Entry.Priority < loaded[j].Entry.Priority })
	return loaded, nil
}
