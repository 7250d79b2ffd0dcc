package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitebrief/internal/app"
	"sitebrief/internal/config"
	"sitebrief/internal/db"
	"sitebrief/internal/domain"
	"sitebrief/internal/engine"
	"sitebrief/internal/migrate"
	"sitebrief/internal/repo"
	"sitebrief/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sb",
	Short: "Sitebrief CLI",
	Long: `Sitebrief runs the daily briefing for a construction site.
Core concepts:
- Workspace: your .sitebrief directory with only the database; configs are stored in the DB and imported explicitly.
- Project: one construction site; owns the contractor roster, briefings, and activities.
- Briefing: one per project per date, created on first touch as a draft; carries overview, notes, and the safety message.
- Activities: the day's work items, sorted by area, then priority (critical first), then title.
- Contractors: the roster of crews; activities reference them by id and resolution drops ids that left the roster.
- Stats: daily totals, date-range series (zero-filled), rolling per-contractor labor, lifetime area usage.
- Copy day: duplicate yesterday's activities onto an empty day (sb copy-day --from --to).
- Event log: diary of changes, view with 'sb log tail'.`,
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
	viper.SetEnvPrefix("SITEBRIEF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(contractorCmd())
	rootCmd.AddCommand(briefingCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(copyDayCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(apikeyCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUseCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			cfg.Project.Name = name
			e := engine.New(conn, cfg)
			if err := e.InitProject(cmd.Context(), id, name, viper.GetString("actor-id")); err != nil {
				return err
			}
			p, err := e.Repo.GetProject(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("project")
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if target == "" {
					target = e.Config.Project.ID
				}
				p, err := e.Repo.GetProject(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current project for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := strings.TrimSpace(args[0])
			if projectID == "" {
				return fmt.Errorf("project id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "SITEBRIEF_DEFAULT_PROJECT", projectID); err != nil {
				return err
			}
			fmt.Printf("Set SITEBRIEF_DEFAULT_PROJECT=%s in %s/.env\n", projectID, workspace)
			return nil
		},
	}
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage project config",
	}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigImportCmd())
	cfg.AddCommand(projectConfigValidateCmd())
	return cfg
}

func projectConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored project config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				cfg, err := e.Repo.GetProjectConfig(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	return cmd
}

func projectConfigImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID := cfg.Project.ID
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				if err := e.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
					return err
				}
				fmt.Printf("Imported config for project %s\n", projectID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func projectConfigValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a YAML config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			if _, err := config.FromFile(file); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func contractorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contractor", Short: "Manage the contractor roster"}
	cmd.AddCommand(contractorAddCmd())
	cmd.AddCommand(contractorListCmd())
	cmd.AddCommand(contractorUpdateCmd())
	cmd.AddCommand(contractorDeleteCmd())
	return cmd
}

func contractorAddCmd() *cobra.Command {
	var opts engine.ContractorCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add contractor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if opts.ProjectID == "" {
					opts.ProjectID = e.Config.Project.ID
				}
				opts.ActorID = viper.GetString("actor-id")
				c, err := e.AddContractor(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "contractor name")
	cmd.Flags().StringVar(&opts.Trade, "trade", "", "trade (electrical, plumbing, ...)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status (Active, Standby, Delayed, Complete, Offsite)")
	cmd.Flags().StringVar(&opts.ContactName, "contact", "", "contact name")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("trade")
	return cmd
}

func contractorListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contractors in roster order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListContractors(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Trade", "Status", "Contact", "Phone"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Trade, c.Status, c.ContactName, c.Phone})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func contractorUpdateCmd() *cobra.Command {
	var name, trade, status, contact, phone, email string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update contractor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				opts := engine.ContractorUpdateOptions{
					ProjectID: e.Config.Project.ID,
					ID:        args[0],
					ActorID:   viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("trade") {
					opts.Trade = &trade
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("contact") {
					opts.ContactName = &contact
				}
				if cmd.Flags().Changed("phone") {
					opts.Phone = &phone
				}
				if cmd.Flags().Changed("email") {
					opts.Email = &email
				}
				c, err := e.UpdateContractor(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "contractor name")
	cmd.Flags().StringVar(&trade, "trade", "", "trade")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&contact, "contact", "", "contact name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone")
	cmd.Flags().StringVar(&email, "email", "", "email")
	return cmd
}

func contractorDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove contractor from the roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.DeleteContractor(ctx, e.Config.Project.ID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func briefingCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "briefing", Short: "Daily briefings"}
	cmd.AddCommand(briefingShowCmd())
	cmd.AddCommand(briefingUpdateCmd())
	return cmd
}

func briefingShowCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the briefing for a date (creates a draft if missing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				b, err := e.GetOrCreateBriefing(ctx, e.Config.Project.ID, date, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	return cmd
}

func briefingUpdateCmd() *cobra.Command {
	var date, status, overview, notes, safety string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update briefing text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				opts := engine.BriefingUpdateOptions{
					ProjectID: e.Config.Project.ID,
					Date:      date,
					ActorID:   viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("overview") {
					opts.Overview = &overview
				}
				if cmd.Flags().Changed("notes") {
					opts.Notes = &notes
				}
				if cmd.Flags().Changed("safety") {
					opts.SafetyMessage = &safety
				}
				b, err := e.UpdateBriefing(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&status, "status", "", "status (draft, published)")
	cmd.Flags().StringVar(&overview, "overview", "", "overview text")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&safety, "safety", "", "safety message")
	return cmd
}

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "activity", Short: "Briefing activities"}
	cmd.AddCommand(activityAddCmd())
	cmd.AddCommand(activityListCmd())
	cmd.AddCommand(activityGetCmd())
	cmd.AddCommand(activityUpdateCmd())
	cmd.AddCommand(activityDeleteCmd())
	return cmd
}

func activityAddCmd() *cobra.Command {
	var opts engine.ActivityCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add activity to a day's briefing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if opts.ProjectID == "" {
					opts.ProjectID = e.Config.Project.ID
				}
				opts.ActorID = viper.GetString("actor-id")
				a, err := e.AddActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Date, "date", "", "date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.TimeOfDay, "time", "", "time of day (e.g. 07:00)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Area, "area", "", "work area")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (critical, high, medium, low)")
	cmd.Flags().IntVar(&opts.LaborCount, "labor", 0, "labor headcount")
	cmd.Flags().StringArrayVar(&opts.ContractorIDs, "contractor", []string{}, "contractor id (repeatable)")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "supervisor")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func activityListCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a day's activities in briefing order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListActivities(ctx, e.Config.Project.ID, date)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				maps, err := e.BuildLookupMaps(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Area", "Priority", "Title", "Labor", "Contractors"})
				for _, a := range items {
					names := make([]string, 0, len(a.ContractorIDs))
					for _, ref := range engine.ResolveActivityContractors(a, maps) {
						names = append(names, ref.Name)
					}
					tw.AppendRow(table.Row{a.ID, a.Area, a.Priority, a.Title, a.LaborCount, strings.Join(names, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	return cmd
}

func activityGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.Repo.GetActivity(ctx, e.Config.Project.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func activityUpdateCmd() *cobra.Command {
	var opts engine.ActivityUpdateOptions
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace activity fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				opts.ProjectID = e.Config.Project.ID
				opts.ID = args[0]
				opts.ActorID = viper.GetString("actor-id")
				a, err := e.UpdateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.TimeOfDay, "time", "", "time of day")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Area, "area", "", "work area")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority")
	cmd.Flags().IntVar(&opts.LaborCount, "labor", 0, "labor headcount")
	cmd.Flags().StringArrayVar(&opts.ContractorIDs, "contractor", []string{}, "contractor id (repeatable)")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "supervisor")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func activityDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.DeleteActivity(ctx, e.Config.Project.ID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func copyDayCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "copy-day",
		Short: "Copy a day's activities onto an empty day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" || to == "" {
				return fmt.Errorf("--from and --to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				copied, err := e.CopyDay(ctx, e.Config.Project.ID, from, to, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Copied %d activities from %s to %s\n", copied, from, to)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "target date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stats", Short: "Labor and activity statistics"}
	cmd.AddCommand(statsDailyCmd())
	cmd.AddCommand(statsRangeCmd())
	cmd.AddCommand(statsRollingCmd())
	cmd.AddCommand(statsAreasCmd())
	return cmd
}

func statsDailyCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Daily totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				stats, err := e.DailyTotals(ctx, e.Config.Project.ID, date)
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	return cmd
}

func statsRangeCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Range totals with zero-filled daily series",
		RunE: func(cmd *cobra.Command, args []string) error {
			if start == "" || end == "" {
				return fmt.Errorf("--start and --end required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				stats, err := e.RangeTotals(ctx, e.Config.Project.ID, start, end)
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func statsRollingCmd() *cobra.Command {
	var end string
	var window int
	cmd := &cobra.Command{
		Use:   "rolling",
		Short: "Per-contractor labor over a rolling window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				stats, err := e.RollingContractorDaily(ctx, e.Config.Project.ID, end, window)
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "window end date YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&window, "window", 0, "window size in days (default from config)")
	return cmd
}

func statsAreasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "areas",
		Short: "Lifetime per-area usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				stats, err := e.AreaUsageStats(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Area", "Activities", "Labor", "Months", "First", "Last"})
				for _, row := range stats {
					tw.AppendRow(table.Row{row.Area, row.ActivityCount, row.TotalLabor, row.MonthsActive, row.FirstDate, row.LastDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: briefings, activities, roster changes, and day copies.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, e.Config.Project.ID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			_, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), conn, workspace, viper.GetString("project"), viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("SITEBRIEF_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("SITEBRIEF_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, BaseContext: cmd.Context()})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Sitebrief API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := "sbk_" + strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
				key := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actor,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Printf("API key for %s (store it now, it is not shown again):\n%s\n", actor, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	_, cfg, err := app.ResolveProjectAndConfig(ctx, conn, workspace, viper.GetString("project"), viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
