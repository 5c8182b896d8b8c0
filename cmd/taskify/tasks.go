package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"taskify/backend/internal/client"
	"taskify/backend/internal/models"
	"taskify/backend/internal/query"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type taskListOptions struct {
	server   string
	username string
	password string
	status   string
	priority string
	sortBy   string
	order    string
	mine     bool
	assignee int64
	timeout  time.Duration
}

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Work with tasks on a running server",
	}
	cmd.AddCommand(newTasksListCmd())
	return cmd
}

func newTasksListCmd() *cobra.Command {
	opts := &taskListOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch tasks, then filter and sort them locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.password == "" {
				opts.password = os.Getenv("TASKIFY_PASSWORD")
			}
			if opts.sortBy != "" && !query.SortKey(opts.sortBy).Valid() {
				return fmt.Errorf("unknown sort key %q (want priority, due_date, status or title)", opts.sortBy)
			}

			cfg := client.DefaultConfig()
			cfg.BaseURL = opts.server
			cfg.Timeout = opts.timeout
			c := client.New(cfg)

			ctx := cmd.Context()
			if _, err := c.Login(ctx, opts.username, opts.password); err != nil {
				return err
			}

			var tasks []models.Task
			switch {
			case opts.mine:
				page, err := c.MyTasks(ctx, nil)
				if err != nil {
					return err
				}
				tasks = page.Tasks
			case opts.assignee > 0:
				page, err := c.ListTasksByAssignee(ctx, opts.assignee, nil)
				if err != nil {
					return err
				}
				tasks = page.Tasks
			default:
				page, err := c.ListTasks(ctx, nil)
				if err != nil {
					return err
				}
				tasks = page.Tasks
			}

			result := query.Apply(tasks, query.Query{
				Filter: query.NewFilter(opts.status, opts.priority),
				SortBy: query.SortKey(opts.sortBy),
				Order:  query.ParseSortOrder(opts.order),
			})
			return printTasks(cmd.OutOrStdout(), result, time.Now())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", "http://localhost:8080", "API base URL")
	flags.StringVar(&opts.username, "username", "", "login name")
	flags.StringVar(&opts.password, "password", "", "password (defaults to $TASKIFY_PASSWORD)")
	flags.StringVar(&opts.status, "status", "", "only tasks with this status (to_do, in_progress, done)")
	flags.StringVar(&opts.priority, "priority", "", "only tasks with this priority (low, medium, high)")
	flags.StringVar(&opts.sortBy, "sort-by", "", "priority, due_date, status or title")
	flags.StringVar(&opts.order, "order", "asc", "asc or desc")
	flags.BoolVar(&opts.mine, "mine", false, "only tasks assigned to the logged in account")
	flags.Int64Var(&opts.assignee, "assignee", 0, "only tasks assigned to this assignee id")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("username")
	cmd.MarkFlagsMutuallyExclusive("mine", "assignee")
	return cmd
}

func printTasks(out io.Writer, tasks []models.Task, now time.Time) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(out, "no tasks")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tASSIGNEE\tDUE")
	for _, t := range tasks {
		assignee := "-"
		if t.AssigneeID != nil {
			assignee = strconv.FormatInt(*t.AssigneeID, 10)
		}
		due := "-"
		if t.DueDate != nil {
			due = humanize.RelTime(*t.DueDate, now, "ago", "from now")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", shortID(t.ID.String()), t.Title, t.Status, t.Priority, assignee, due)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d task(s)\n", len(tasks))
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
