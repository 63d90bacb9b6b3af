package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Create a weft.yml for a new project",
	Long:  "Interactively scaffold a Weft project configuration in a new directory.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		answers := struct {
			Name   string
			Driver string
			URL    string
			Port   int
			Redis  bool
		}{Name: "weft-app", Driver: "postgres", Port: 8080}

		if len(args) == 1 {
			answers.Name = args[0]
		}

		questions := []*survey.Question{
			{
				Name:     "name",
				Prompt:   &survey.Input{Message: "Project name:", Default: answers.Name},
				Validate: survey.ComposeValidators(survey.Required, validateProjectName),
			},
			{
				Name: "driver",
				Prompt: &survey.Select{
					Message: "Database driver:",
					Options: []string{"postgres", "sqlite"},
					Default: "postgres",
				},
			},
			{
				Name:   "url",
				Prompt: &survey.Input{Message: "Database URL:", Default: "postgres://localhost:5432/weft?sslmode=disable"},
			},
			{
				Name:   "port",
				Prompt: &survey.Input{Message: "Server port:", Default: "8080"},
			},
			{
				Name:   "redis",
				Prompt: &survey.Confirm{Message: "Enable the Redis response cache?", Default: false},
			},
		}
		if err := survey.Ask(questions, &answers); err != nil {
			return err
		}

		projectPath := filepath.Join(".", answers.Name)
		if _, err := os.Stat(projectPath); err == nil {
			return fmt.Errorf("directory %s already exists", answers.Name)
		}
		if err := os.MkdirAll(projectPath, 0o755); err != nil {
			return fmt.Errorf("failed to create project directory: %w", err)
		}

		if err := os.WriteFile(filepath.Join(projectPath, "weft.yml"),
			[]byte(renderConfig(answers.Name, answers.Driver, answers.URL, answers.Port, answers.Redis)), 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(projectPath, ".gitignore"),
			[]byte("*.db\n*.log\n"), 0o644); err != nil {
			return err
		}

		color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(), "Created %s\n", answers.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "  cd %s && weft serve\n", answers.Name)
		return nil
	},
}

func validateProjectName(value any) error {
	name, _ := value.(string)
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("project name must be a plain directory name")
	}
	return nil
}

func renderConfig(name, driver, url string, port int, redis bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "project_name: %s\n\n", name)
	fmt.Fprintf(&b, "server:\n  host: 0.0.0.0\n  port: %d\n\n", port)
	fmt.Fprintf(&b, "database:\n  driver: %s\n  url: %s\n", driver, url)
	if redis {
		b.WriteString("\nredis:\n  addr: localhost:6379\n")
	}
	return b.String()
}
