package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zenweave/zen/internal/dag"
	"github.com/zenweave/zen/internal/model"
)

// TaskSpec is one task descriptor parsed out of a `.code-task.md` file
// produced by the code-task-generator skill. ID is the file's own
// reference string (e.g. "task-1"), not a model.ID — BuildTaskDAG
// mints the real identifiers.
type TaskSpec struct {
	ID           string
	Name         string
	Description  string
	Dependencies []string
}

// frontMatter is the YAML front-matter shape recognized at the top of
// a `.code-task.md` file.
type frontMatter struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Dependencies []string `yaml:"dependencies"`
}

// dependencyPhrase recognizes prose-embedded dependency references a
// generator skill might emit instead of structured front matter, the
// same phrasing the teacher's issue dependency parser recognizes
// ("depends on #123", "blocked by #456", ...), generalized from issue
// numbers to arbitrary task reference strings.
var dependencyPhrase = regexp.MustCompile(`(?i)(?:depends\s+on|blocked\s+by|after|requires)\s*:?\s*#?([a-zA-Z0-9_-]+)`)

// DiscoverCodeTaskFiles returns every `*.code-task.md` file under dir,
// in deterministic (lexical) order.
func DiscoverCodeTaskFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".code-task.md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: discover task files in %s: %w", dir, err)
	}
	return files, nil
}

// ParseCodeTaskFile parses one `.code-task.md` file's content into a
// TaskSpec. It recognizes a YAML front-matter block
// (`---\n...\n---\n<body>`); failing that, it falls back to treating
// the first non-blank line as the name, the whole content as the
// description, and any dependency phrase anywhere in the body as a
// dependency reference.
func ParseCodeTaskFile(path string, content []byte) (TaskSpec, error) {
	text := string(content)
	if fm, body, ok := splitFrontMatter(text); ok {
		var parsed frontMatter
		if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
			return TaskSpec{}, fmt.Errorf("workflow: parse front matter in %s: %w", path, err)
		}
		spec := TaskSpec{
			ID:           parsed.ID,
			Name:         parsed.Name,
			Description:  parsed.Description,
			Dependencies: parsed.Dependencies,
		}
		if spec.Description == "" {
			spec.Description = strings.TrimSpace(body)
		}
		if spec.ID == "" {
			spec.ID = defaultSpecID(path)
		}
		if spec.Name == "" {
			spec.Name = firstNonBlankLine(body)
		}
		spec.Dependencies = append(spec.Dependencies, extractDependencyPhrases(body)...)
		return spec, nil
	}

	return TaskSpec{
		ID:           defaultSpecID(path),
		Name:         firstNonBlankLine(text),
		Description:  strings.TrimSpace(text),
		Dependencies: extractDependencyPhrases(text),
	}, nil
}

func defaultSpecID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, ".code-task.md")
}

func firstNonBlankLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		trimmed = strings.TrimSpace(trimmed)
		if trimmed != "" {
			return trimmed
		}
	}
	return "untitled task"
}

func extractDependencyPhrases(text string) []string {
	var deps []string
	for _, m := range dependencyPhrase.FindAllStringSubmatch(text, -1) {
		deps = append(deps, m[1])
	}
	return deps
}

// splitFrontMatter splits text into its `---` front-matter block and
// trailing body, if present.
func splitFrontMatter(text string) (fm, body string, ok bool) {
	const delim = "---"
	trimmed := strings.TrimLeft(text, "\n\r")
	if !strings.HasPrefix(trimmed, delim) {
		return "", "", false
	}
	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return "", "", false
	}
	fm = rest[:idx]
	body = rest[idx+len("\n"+delim):]
	return fm, body, true
}

// BuildTaskDAG constructs a TaskDAG from parsed specs in two passes:
// first every task is added as a node, then dependency edges are
// wired by matching each spec's Dependencies against the ID each spec
// declared for itself. A dependency referencing an ID no other spec
// declared is logged (via the returned warnings) and skipped rather
// than failing the whole build.
func BuildTaskDAG(workflowID model.ID, specs []TaskSpec) (*dag.TaskDAG, []*model.Task, []string) {
	graph := dag.New()
	idByRef := make(map[string]model.ID, len(specs))
	tasks := make([]*model.Task, 0, len(specs))

	for _, spec := range specs {
		t := model.NewTask(workflowID, spec.Name, spec.Description)
		idByRef[spec.ID] = t.ID
		graph.AddTask(t)
		tasks = append(tasks, t)
	}

	var warnings []string
	for _, spec := range specs {
		to, ok := idByRef[spec.ID]
		if !ok {
			continue
		}
		for _, depRef := range spec.Dependencies {
			from, ok := idByRef[depRef]
			if !ok {
				warnings = append(warnings, fmt.Sprintf("task %q depends on unknown reference %q, skipped", spec.ID, depRef))
				continue
			}
			// A `.code-task.md` dependency, whether from front matter or a
			// prose phrase, is a planner-asserted ordering: nothing here
			// mechanically derives it from shared data or file overlap.
			if err := graph.AddDependency(from, to, model.SemanticDependency); err != nil {
				warnings = append(warnings, fmt.Sprintf("task %q dependency on %q skipped: %v", spec.ID, depRef, err))
			}
		}
	}

	return graph, tasks, warnings
}
