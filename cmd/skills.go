package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hb-chen/skillgate/internal/config"
	"github.com/hb-chen/skillgate/internal/skill"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the skills this gateway can run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		registry, err := skill.Load(cfg.Skills.Path)
		if err != nil {
			return fmt.Errorf("failed to load skills: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderSkills(registry.List()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(skillsCmd)
}
