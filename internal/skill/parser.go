package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hb-chen/skillgate/pkg/logger"
)

// SkillFile is the file name looked up inside each skill directory.
const SkillFile = "SKILL.md"

// ParseSKILL parses a SKILL.md file: YAML frontmatter holding the descriptor,
// followed by free-form notes. The first paragraph of the notes becomes the
// description when the frontmatter omits one.
func ParseSKILL(skillPath string) (Descriptor, error) {
	data, err := os.ReadFile(skillPath)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to read %s: %w", SkillFile, err)
	}

	frontmatter, body, err := extractFrontmatter(string(data))
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to extract frontmatter: %w", err)
	}

	var d Descriptor
	if err := yaml.Unmarshal([]byte(frontmatter), &d); err != nil {
		return Descriptor{}, fmt.Errorf("failed to parse frontmatter YAML: %w", err)
	}

	if d.Name == "" {
		d.Name = filepath.Base(filepath.Dir(skillPath))
	}
	if d.Description == "" {
		d.Description = firstParagraph(body)
	}

	return d, nil
}

// LoadDir loads every <dir>/*/SKILL.md. Unparsable skills are skipped with a
// warning so one broken file does not take the gateway down.
func LoadDir(dir string) ([]Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read skills directory: %w", err)
	}

	var descriptors []Descriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), SkillFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		d, err := ParseSKILL(path)
		if err != nil {
			logger.Warnf("Failed to load skill from %s: %v", path, err)
			continue
		}
		descriptors = append(descriptors, d)
	}

	if len(descriptors) == 0 {
		return nil, fmt.Errorf("no skills found in %s", dir)
	}
	return descriptors, nil
}

// extractFrontmatter splits "---\n<yaml>\n---\n<body>".
func extractFrontmatter(content string) (string, string, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", content, fmt.Errorf("%s must start with YAML frontmatter (---)", SkillFile)
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}

	return "", content, fmt.Errorf("invalid frontmatter format: closing --- not found")
}

func firstParagraph(body string) string {
	var para []string
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" && len(para) > 0 {
			break
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		para = append(para, line)
	}
	return strings.Join(para, " ")
}
