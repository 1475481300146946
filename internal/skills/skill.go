// Package skills loads markdown instruction bundles the agent can activate
// to specialize its behavior. A skill is a directory holding a SKILL.md file
// with YAML frontmatter and a markdown body:
//
//	---
//	name: ticket-triage
//	description: Classify and route incoming tickets
//	triggers: ["triage", "classify ticket"]
//	---
//
//	# Ticket triage
//
//	Instructions for the agent...
//
// Skills live in the object store under the /skills mount and are cached to
// a local directory; the Loader parses the cache and hot-reloads on change.
package skills

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// SkillFileName is the expected filename for skill definitions.
const SkillFileName = "SKILL.md"

// Skill is one parsed SKILL.md.
type Skill struct {
	// Name uniquely identifies the skill within a user's library.
	Name string `yaml:"name"`

	// Description is the one-liner shown in the catalog.
	Description string `yaml:"description"`

	// Version tracks skill updates.
	Version string `yaml:"version"`

	// Tags categorize the skill for discovery.
	Tags []string `yaml:"tags"`

	// Triggers are phrases that suggest activating this skill.
	Triggers []string `yaml:"triggers"`

	// Priority orders skills in listings (higher first).
	Priority int `yaml:"priority"`

	// Body is the markdown instructions, parsed from below the frontmatter.
	Body string `yaml:"-"`

	// FilePath records where this skill was loaded from.
	FilePath string `yaml:"-"`

	// Owner is the user whose library holds this skill, derived from the
	// cache layout (dir/{userID}/{skill}/SKILL.md).
	Owner string `yaml:"-"`
}

// Validate checks required fields.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("skill %q: description is required", s.Name)
	}
	return nil
}

// Parse parses SKILL.md bytes: YAML frontmatter between --- markers, then
// the markdown body.
func Parse(data []byte) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var skill Skill
	if err := yaml.Unmarshal(frontmatter, &skill); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	skill.Body = string(bytes.TrimSpace(body))
	return &skill, nil
}

// splitFrontmatter separates the YAML frontmatter from the markdown body.
func splitFrontmatter(data []byte) (frontmatter, body []byte, err error) {
	if !bytes.HasPrefix(data, []byte("---")) {
		return nil, nil, fmt.Errorf("SKILL.md must start with --- frontmatter")
	}

	rest := bytes.TrimLeft(data[3:], " \t")
	rest = trimLeadingNewline(rest)

	// "\n---" also matches inside a CRLF sequence, so this covers both
	// line-ending conventions.
	idx := bytes.Index(rest, []byte("\n---"))
	if idx == -1 {
		return nil, nil, fmt.Errorf("SKILL.md frontmatter is missing its closing ---")
	}

	frontmatter = bytes.TrimRight(rest[:idx], "\r")
	body = rest[idx+4:]
	body = trimLeadingNewline(bytes.TrimLeft(body, " \t"))
	return frontmatter, body, nil
}

func trimLeadingNewline(b []byte) []byte {
	if len(b) > 1 && b[0] == '\r' && b[1] == '\n' {
		return b[2:]
	}
	if len(b) > 0 && b[0] == '\n' {
		return b[1:]
	}
	return b
}
