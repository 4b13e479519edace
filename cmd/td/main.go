package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/migrate"
	"taskdeck/internal/repo"
	"taskdeck/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "Taskdeck CLI",
	Long: `Taskdeck tracks tasks for a small team.
Tasks belong to their creator, can be assigned to any registered user, and
move between TODO, IN_PROGRESS, REVIEW and COMPLETED freely. Assigning a
task to someone else notifies them. The workspace keeps everything in a
local .taskdeck SQLite database; 'td serve' exposes the same engine over
HTTP with bearer tokens.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("user", "u", "", "acting user (id or email)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userRegisterCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userShowCmd())
	return user
}

func userRegisterCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Register(ctx, engine.RegisterInput{Name: name, Email: email, Password: password})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id-or-email>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u, err := lookupUser(ctx, r, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskCompleteCmd())
	task.AddCommand(taskReopenCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var in engine.TaskInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				if in.AssigneeID != "" {
					u, err := lookupUser(ctx, e.Repo, in.AssigneeID)
					if err != nil {
						return err
					}
					in.AssigneeID = u.ID
				}
				t, err := e.CreateTask(ctx, identity, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.DueDate, "due", "", "due date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&in.Priority, "priority", domain.PriorityMedium, "priority (LOW, MEDIUM, HIGH)")
	cmd.Flags().StringVar(&in.AssigneeID, "assignee", "", "assignee (id or email, defaults to you)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var q engine.TaskQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks you created or are assigned",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				tasks := e.ListTasks(ctx, identity, q)
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Due", "Assignee"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
						if engine.IsOverdue(t, now) {
							due += " (overdue)"
						}
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, due, t.AssigneeID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&q.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&q.Query, "search", "", "title/description search")
	cmd.Flags().StringVar(&q.Sort, "sort", "", "sort, e.g. dueDate-asc, priority-desc, title-asc")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				t, err := e.GetTask(ctx, identity, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, due, priority, status, assignee string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task (creator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				// Edits are full-form, so start from the current row and
				// overlay only the flags that were set.
				t, err := e.GetTask(ctx, identity, args[0])
				if err != nil {
					return err
				}
				in := engine.TaskInput{
					Title:       t.Title,
					Description: t.Description,
					Priority:    t.Priority,
					Status:      t.Status,
					AssigneeID:  t.AssigneeID,
				}
				if t.DueDate != nil {
					in.DueDate = *t.DueDate
				}
				if cmd.Flags().Changed("title") {
					in.Title = title
				}
				if cmd.Flags().Changed("description") {
					in.Description = description
				}
				if cmd.Flags().Changed("due") {
					in.DueDate = due
				}
				if cmd.Flags().Changed("priority") {
					in.Priority = priority
				}
				if cmd.Flags().Changed("status") {
					in.Status = status
				}
				if cmd.Flags().Changed("assignee") {
					u, err := lookupUser(ctx, e.Repo, assignee)
					if err != nil {
						return err
					}
					in.AssigneeID = u.ID
				}
				updated, err := e.UpdateTask(ctx, identity, args[0], in)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&due, "due", "", "due date (empty clears it)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (LOW, MEDIUM, HIGH)")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee (id or email)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task (creator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				if err := e.DeleteTask(ctx, identity, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func taskStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set task status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				t, err := e.SetStatus(ctx, identity, args[0], strings.ToUpper(args[1]))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				t, err := e.MarkCompleted(ctx, identity, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen a task (back to TODO)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				t, err := e.Reopen(ctx, identity, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func notifyCmd() *cobra.Command {
	notify := &cobra.Command{Use: "notify", Short: "Manage notifications"}
	notify.AddCommand(notifyListCmd())
	notify.AddCommand(notifyReadCmd())
	notify.AddCommand(notifyReadAllCmd())
	return notify
}

func notifyListCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				items, err := e.Notifications(ctx, identity, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Message", "Read", "Created"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Title, it.Message, it.Read, it.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 50, "number of notifications")
	return cmd
}

func notifyReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				return e.MarkNotificationRead(ctx, identity, args[0])
			})
		},
	}
	return cmd
}

func notifyReadAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read-all",
		Short: "Mark all notifications read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				return e.MarkAllNotificationsRead(ctx, identity)
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show your task counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, identity string) error {
				stats, err := e.Stats(ctx, identity)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Assigned:  %d\n", stats.Assigned)
				fmt.Printf("Created:   %d\n", stats.Created)
				fmt.Printf("Overdue:   %d\n", stats.Overdue)
				fmt.Printf("Completed: %d\n", stats.Completed)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Options{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			secret := cfg.Auth.JWTSecret
			if env := os.Getenv("TASKDECK_JWT_SECRET"); env != "" {
				secret = env
			}
			if secret == "" {
				return fmt.Errorf("jwt secret is required: set auth.jwt_secret in taskdeck.yml or TASKDECK_JWT_SECRET")
			}
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			e := engine.New(conn, cfg, log)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret: secret,
					TokenTTL:  time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
					Logger:    log,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info().Str("addr", cfg.Server.Addr).Str("base_path", cfg.Server.BasePath).Msg("serving Taskdeck API")
			fmt.Printf("Serving Taskdeck API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Options{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return fn(ctx, engine.New(conn, cfg, log))
}

// withIdentity resolves --user to a registered user before running fn.
func withIdentity(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		ref := strings.TrimSpace(viper.GetString("user"))
		if ref == "" {
			return fmt.Errorf("acting user is required: pass --user <id-or-email> or set TASKDECK_USER")
		}
		u, err := lookupUser(ctx, e.Repo, ref)
		if err != nil {
			return err
		}
		return fn(ctx, e, u.ID)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Options{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// lookupUser accepts either a user id or an email address.
func lookupUser(ctx context.Context, r repo.Repo, ref string) (domain.User, error) {
	if strings.Contains(ref, "@") {
		u, err := r.GetUserByEmail(ctx, strings.ToLower(ref))
		if err != nil {
			return domain.User{}, fmt.Errorf("user %q: %w", ref, err)
		}
		return u, nil
	}
	u, err := r.GetUser(ctx, ref)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %q: %w", ref, err)
	}
	return u, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
