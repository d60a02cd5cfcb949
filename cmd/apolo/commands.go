package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/store"
	"github.com/tgienger/apolo/internal/tree"
	"gopkg.in/yaml.v3"
)

func listCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, or the task tree of one project",
		Example: `  apolo list
  apolo list --project 3f2a9c`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				out := cmd.OutOrStdout()
				if projectID == "" {
					printProjects(out, s.manager.Snapshot().Projects)
					return nil
				}
				p, ok := s.manager.Project(projectID)
				if !ok {
					return fmt.Errorf("project %s not found", projectID)
				}
				fmt.Fprintf(out, "%s (%d%%)\n", p.Title, tree.ProjectProgress(p))
				printTasks(out, p.Tasks)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "show the tasks of this project")
	return cmd
}

func printProjects(out io.Writer, projects []models.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTASKS\tDONE")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d%%\n", p.ID, p.Title, tree.Count(p.Tasks), tree.ProjectProgress(p))
	}
	w.Flush()
}

// printTasks writes the forest as an indented checklist
func printTasks(out io.Writer, tasks []models.Task) {
	depth := map[string]int{}
	tree.Walk(tasks, func(t models.Task, parentID string) bool {
		d := 0
		if parentID != "" {
			d = depth[parentID] + 1
		}
		depth[t.ID] = d

		check := "[ ]"
		if t.Status == models.StatusCompleted {
			check = "[x]"
		}
		line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", d), check, t.Title)
		if len(t.Subtasks) > 0 {
			line += fmt.Sprintf(" (%d%%)", tree.Progress(t))
		}
		for _, tag := range t.Tags {
			line += " #" + tag
		}
		fmt.Fprintf(out, "%s  %s\n", line, t.ID)
		return true
	})
}

func searchCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search task titles and descriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				out := cmd.OutOrStdout()
				found := 0
				for _, p := range s.manager.Snapshot().Projects {
					if projectID != "" && p.ID != projectID {
						continue
					}
					matches := tree.Search(p.Tasks, args[0])
					if len(matches) == 0 {
						continue
					}
					found++
					fmt.Fprintln(out, p.Title)
					printTasks(out, matches)
				}
				if found == 0 {
					fmt.Fprintf(out, "No tasks match %q.\n", args[0])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "only search this project")
	return cmd
}

func exportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every project and task as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				data, err := yaml.Marshal(s.manager.Snapshot())
				if err != nil {
					return fmt.Errorf("encode export: %w", err)
				}
				if outPath == "" || outPath == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(outPath, data, 0644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d projects to %s\n", len(s.manager.Snapshot().Projects), outPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <project-id>",
		Short: "Join a shared project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				if err := s.manager.JoinProject(args[0]).Wait(cmd.Context()); err != nil {
					return fmt.Errorf("join project: %w", err)
				}
				p, ok := s.manager.Project(args[0])
				if !ok {
					return fmt.Errorf("project %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Joined %s\n", p.Title)
				return nil
			})
		},
	}
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a project or task",
	}
	cmd.AddCommand(addProjectCmd(), addTaskCmd())
	return cmd
}

func addProjectCmd() *cobra.Command {
	var subtitle string

	cmd := &cobra.Command{
		Use:   "project <title>",
		Short: "Add a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				c := s.manager.AddProject(args[0], subtitle)
				if err := c.Wait(cmd.Context()); err != nil {
					return fmt.Errorf("add project: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.ID())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&subtitle, "subtitle", "s", "", "project subtitle")
	return cmd
}

func addTaskCmd() *cobra.Command {
	var (
		projectID   string
		parentID    string
		description string
		tags        []string
	)

	cmd := &cobra.Command{
		Use:   "task <title>",
		Short: "Add a task to a project",
		Example: `  apolo add task "Water plants" --project 3f2a9c
  apolo add task "Roses" --project 3f2a9c --parent 8b1e04 --tag garden`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				if _, ok := s.manager.Project(projectID); !ok {
					return fmt.Errorf("project %s not found", projectID)
				}
				s.manager.SetActiveProject(projectID)

				c := s.manager.AddTask(parentID, args[0])
				if !c.Applied() {
					return fmt.Errorf("parent task %s not found", parentID)
				}
				if err := c.Wait(cmd.Context()); err != nil {
					return fmt.Errorf("add task: %w", err)
				}
				if description != "" || len(tags) > 0 {
					patch := store.TaskPatch{}
					if description != "" {
						patch.Description = &description
					}
					if len(tags) > 0 {
						patch.Tags = &tags
					}
					if err := s.manager.UpdateTask(c.ID(), patch).Wait(cmd.Context()); err != nil {
						return fmt.Errorf("update task: %w", err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.ID())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project to add the task to")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent task (default: a root task)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "task tag (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func doneCmd() *cobra.Command {
	var (
		projectID string
		note      string
	)

	cmd := &cobra.Command{
		Use:   "done <task-id>",
		Short: "Toggle a task between pending and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				s.manager.SetActiveProject(projectID)
				t, ok := s.manager.Task(args[0])
				if !ok {
					return fmt.Errorf("task %s not found in project %s", args[0], projectID)
				}
				if err := s.manager.ToggleTaskStatus(t.ID).Wait(cmd.Context()); err != nil {
					return err
				}
				next := t.Status.Toggled()
				if note == "" {
					note = "Marked as " + strings.ToLower(string(next))
				}
				if err := s.manager.AddActivity(t.ID, note, models.ActivityStatusChange).Wait(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", t.Title, strings.ToLower(string(next)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project of the task")
	cmd.Flags().StringVarP(&note, "note", "m", "", "activity note")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func notificationsCmd() *cobra.Command {
	var markRead bool

	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"inbox"},
		Short:   "Show recent notifications",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				out := cmd.OutOrStdout()
				notifications := s.manager.Notifications()
				fmt.Fprintf(out, "%d unread\n", s.manager.UnreadCount())
				for _, n := range notifications {
					marker := " "
					if !n.Read {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %s  %s: %s\n", marker, n.CreatedAt.Format("2006-01-02 15:04"), n.Title, n.Body)
					if markRead && !n.Read {
						s.manager.MarkNotificationRead(n.ID)
					}
				}
				return s.manager.Flush(cmd.Context())
			})
		},
	}

	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark the listed notifications read")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "apolo %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
