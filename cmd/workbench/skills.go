package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftworks/workbench/internal/skills"
)

// SkillsCmd creates the skills management command
func SkillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Manage skill definitions",
		Long: `Skills are SKILL.md files with YAML frontmatter for metadata and a markdown
body with instructions. They live in the object store under the /skills
mount and are cached locally for serving.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all loaded skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := loadSkills(cmd)
			if err != nil {
				return err
			}
			listSkills(loader)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [name]",
		Short: "Show details of a skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := loadSkills(cmd)
			if err != nil {
				return err
			}
			return showSkill(loader, args[0])
		},
	})

	return cmd
}

// loadSkills fills the local cache from the object store when a user is
// given, then parses every cached skill.
func loadSkills(cmd *cobra.Command) (*skills.Loader, error) {
	loader := skills.NewLoader(Cfg.Skills.CacheDir)

	if userFlag != "" {
		e, err := buildEnv(Cfg)
		if err != nil {
			return nil, err
		}
		defer e.states.Close()
		if err := loader.Sync(cmd.Context(), e.objects, userFlag); err != nil {
			return nil, fmt.Errorf("sync skills: %w", err)
		}
	}

	if err := loader.LoadAll(); err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}
	return loader, nil
}

func listSkills(loader *skills.Loader) {
	list := loader.All()
	if userFlag != "" {
		list = loader.List(userFlag)
	}
	if len(list) == 0 {
		fmt.Println("No skills loaded.")
		fmt.Printf("\nSkill cache: %s\n", Cfg.Skills.CacheDir)
		fmt.Println("Use --user to sync a user's skills from the object store.")
		return
	}

	fmt.Printf("Loaded %d skill(s):\n", len(list))
	for _, s := range list {
		fmt.Printf("  %-16s %-24s %s\n", s.Owner, s.Name, s.Description)
		if len(s.Tags) > 0 {
			fmt.Printf("  %-16s %-24s tags: %s\n", "", "", strings.Join(s.Tags, ", "))
		}
	}
}

func showSkill(loader *skills.Loader, name string) error {
	s, ok := findSkill(loader, name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Skill not found: %s\n", name)
		os.Exit(1)
	}

	fmt.Printf("Name:        %s\n", s.Name)
	fmt.Printf("Owner:       %s\n", s.Owner)
	fmt.Printf("Description: %s\n", s.Description)
	if s.Version != "" {
		fmt.Printf("Version:     %s\n", s.Version)
	}
	if len(s.Tags) > 0 {
		fmt.Printf("Tags:        %s\n", strings.Join(s.Tags, ", "))
	}
	if len(s.Triggers) > 0 {
		fmt.Printf("Triggers:    %s\n", strings.Join(s.Triggers, ", "))
	}
	if outline := skills.Outline(s.Body); len(outline) > 0 {
		fmt.Printf("Covers:      %s\n", strings.Join(outline, "; "))
	}
	fmt.Printf("\n%s\n", s.Body)
	return nil
}

// findSkill resolves a name against --user when given, otherwise against
// every loaded library.
func findSkill(loader *skills.Loader, name string) (*skills.Skill, bool) {
	if userFlag != "" {
		return loader.Get(userFlag, name)
	}
	for _, s := range loader.All() {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}
