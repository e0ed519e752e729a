package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/haiemet/internal/bus"
	"github.com/stellarlinkco/haiemet/internal/channel"
	"github.com/stellarlinkco/haiemet/internal/config"
	"github.com/stellarlinkco/haiemet/internal/cron"
	"github.com/stellarlinkco/haiemet/internal/dispatcher"
	"github.com/stellarlinkco/haiemet/internal/gateway"
	"github.com/stellarlinkco/haiemet/internal/logger"
	"github.com/stellarlinkco/haiemet/internal/registry"
)

var rootCmd = &cobra.Command{
	Use:           "haiemet",
	Short:         "haiemet - emotion tracking chat bot",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the bot (channels + cron + status API)",
	RunE:  runGateway,
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to the bot from the terminal",
	Long: `Each input line is one event: "/cmd args" runs a command,
"!data" presses an inline button on the last reply, anything else is text.`,
	RunE: runConsole,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and registry status",
	RunE:  runStatus,
}

var statsCmd = &cobra.Command{
	Use:   "stats <user-id>",
	Short: "Show a user's stored stats",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a backup or broadcast job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsAdd,
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRemove,
}

var jobsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runJobsToggle(cmd, args[0], true) },
}

var jobsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runJobsToggle(cmd, args[0], false) },
}

var (
	consoleUser    string
	consoleHandle  string
	consoleName    string
	consoleVerbose bool

	jobCron    string
	jobEvery   time.Duration
	jobAt      string
	jobAction  string
	jobChannel string
	jobMessage string
)

func init() {
	consoleCmd.Flags().StringVar(&consoleUser, "user", "local", "User id to act as")
	consoleCmd.Flags().StringVar(&consoleHandle, "handle", "", "Handle to register with")
	consoleCmd.Flags().StringVar(&consoleName, "name", "Local", "Display name to register with")
	consoleCmd.Flags().BoolVarP(&consoleVerbose, "verbose", "v", false, "Log to stderr")

	jobsAddCmd.Flags().StringVar(&jobCron, "cron", "", "Cron expression with seconds, e.g. \"0 0 9 * * *\"")
	jobsAddCmd.Flags().DurationVar(&jobEvery, "every", 0, "Fixed interval, e.g. 6h")
	jobsAddCmd.Flags().StringVar(&jobAt, "at", "", "One-shot time (RFC 3339)")
	jobsAddCmd.Flags().StringVar(&jobAction, "action", cron.ActionBackup, "backup or broadcast")
	jobsAddCmd.Flags().StringVar(&jobChannel, "channel", "telegram", "Channel for broadcasts")
	jobsAddCmd.Flags().StringVarP(&jobMessage, "message", "m", "", "Broadcast text (default: mood check-in)")

	jobsCmd.AddCommand(jobsListCmd, jobsAddCmd, jobsRemoveCmd, jobsEnableCmd, jobsDisableCmd)
	rootCmd.AddCommand(gatewayCmd, consoleCmd, onboardCmd, statusCmd, statsCmd, jobsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !cfg.Channels.Telegram.Enabled && !cfg.Channels.WebSocket.Enabled {
		return errors.New("no channel enabled. Set channels.telegram.enabled or channels.websocket.enabled in config, or use 'haiemet console'")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		return errors.New("telegram token not set. Run 'haiemet onboard' or set HAIEMET_TELEGRAM_TOKEN")
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	gw, err := gateway.NewWithOptions(cfg, gateway.Options{Logger: log})
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return gw.Run(ctx)
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewNop()
	if consoleVerbose {
		if log, err = logger.New(cfg.Log.Mode); err != nil {
			return err
		}
		defer log.Sync()
	}

	reg, err := gateway.OpenRegistry(cfg, log)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	// every mutation is already persisted, so an interrupt loses nothing
	err = chat(context.Background(), reg, cfg.Bot, log, cmd.InOrStdin(), cmd.OutOrStdout())
	if closeErr := reg.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close registry: %w", closeErr)
	}
	return err
}

// chat runs the console loop against reg until in is exhausted.
func chat(ctx context.Context, reg dispatcher.Registry, bot config.BotConfig, log *logger.Logger, in io.Reader, out io.Writer) error {
	d := dispatcher.New(reg, bot, dispatcher.WithLogger(log))
	con := channel.NewConsoleChannel(in, out, consoleUser, consoleHandle, consoleName)

	fmt.Fprintf(out, "%s console as user %q. Try /start, /help or !emotion_happy. Ctrl-D quits.\n\n", bot.Name, consoleUser)
	return con.Run(ctx, func(msg bus.InboundMessage) {
		if reply, ok := d.Dispatch(msg); ok {
			if err := con.Send(reply); err != nil {
				log.Warn("console write failed", "error", err)
			}
		}
	})
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fmt.Fprintf(out, "Data dir ready: %s\n", dataDir)

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to set channels.telegram.token and enabled\n", cfgPath)
	fmt.Fprintln(out, "  2. Or set HAIEMET_TELEGRAM_TOKEN and HAIEMET_TELEGRAM_ENABLED=true")
	fmt.Fprintln(out, "  3. Run 'haiemet console' to try the bot locally")
	return nil
}

// openStored loads the stored registry for read-only commands. Closing the
// store without closing the registry skips the final flush.
func openStored(cfg *config.Config) (*registry.Registry, func(), error) {
	store, err := registry.NewStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.Open(store)
	return reg, func() { _ = store.Close() }, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Bot: %s (%s)\n", cfg.Bot.Name, cfg.Bot.Username)
	fmt.Fprintf(out, "Telegram: enabled=%v token=%s\n", cfg.Channels.Telegram.Enabled, dispatcher.Mask(cfg.Channels.Telegram.Token))
	fmt.Fprintf(out, "Verified: %v\n", dispatcher.Authenticated(cfg.Bot))
	fmt.Fprintf(out, "Status API: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)

	switch cfg.Storage.Driver {
	case config.StorageDriverRedis:
		fmt.Fprintf(out, "Storage: redis %s key=%s\n", cfg.Storage.Redis.Addr, cfg.Storage.Redis.Key)
	default:
		fmt.Fprintf(out, "Storage: %s %s\n", cfg.Storage.Driver, cfg.StoragePath())
	}

	reg, closeStore, err := openStored(cfg)
	if err != nil {
		fmt.Fprintf(out, "Registry: error (%v)\n", err)
		return nil
	}
	defer closeStore()
	snap := reg.Snapshot()
	fmt.Fprintf(out, "Users: %d\n", snap.TotalUsers)
	fmt.Fprintf(out, "Messages: %d\n", snap.TotalMessages)
	fmt.Fprintf(out, "Heartbeat: %d beats\n", snap.System.CoreBeats)

	svc := cron.NewService(gateway.JobsPath(config.DataDir()), nil)
	if err := svc.Load(); err != nil {
		fmt.Fprintf(out, "Jobs: error (%v)\n", err)
	} else {
		fmt.Fprintf(out, "Jobs: %d\n", len(svc.ListJobs()))
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, closeStore, err := openStored(cfg)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer closeStore()

	u, ok := reg.Get(args[0])
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), dispatcher.RenderNotRegistered())
		return fmt.Errorf("user %s: %w", args[0], registry.ErrUnknownUser)
	}
	fmt.Fprintln(cmd.OutOrStdout(), dispatcher.RenderStats(u))
	return nil
}

func loadJobs() (*cron.Service, error) {
	svc := cron.NewService(gateway.JobsPath(config.DataDir()), nil)
	if err := svc.Load(); err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	return svc, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	svc, err := loadJobs()
	if err != nil {
		return err
	}
	jobs := svc.ListJobs()
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCHEDULE\tACTION\tENABLED\tLAST")
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
			job.ID, job.Name, describeSchedule(job.Schedule), job.Payload.Action, job.Enabled, describeState(job.State))
	}
	return tw.Flush()
}

func describeSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.KindCron:
		return "cron " + s.Expr
	case cron.KindEvery:
		return "every " + (time.Duration(s.EveryMs) * time.Millisecond).String()
	case cron.KindAt:
		return "at " + time.UnixMilli(s.AtMs).UTC().Format(time.RFC3339)
	default:
		return s.Kind
	}
}

func describeState(s cron.JobState) string {
	if s.LastRunAtMs == 0 {
		return "-"
	}
	last := time.UnixMilli(s.LastRunAtMs).UTC().Format(time.DateTime)
	if s.LastError != "" {
		return fmt.Sprintf("%s %s: %s", last, s.LastStatus, s.LastError)
	}
	return last + " " + s.LastStatus
}

// scheduleFromFlags turns exactly one of --cron, --every or --at into a Schedule.
func scheduleFromFlags(expr string, every time.Duration, at string) (cron.Schedule, error) {
	set := 0
	for _, ok := range []bool{expr != "", every != 0, at != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return cron.Schedule{}, errors.New("set exactly one of --cron, --every or --at")
	}

	switch {
	case expr != "":
		return cron.Schedule{Kind: cron.KindCron, Expr: expr}, nil
	case every != 0:
		return cron.Schedule{Kind: cron.KindEvery, EveryMs: every.Milliseconds()}, nil
	default:
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("parse --at: %w", err)
		}
		return cron.Schedule{Kind: cron.KindAt, AtMs: t.UnixMilli()}, nil
	}
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	schedule, err := scheduleFromFlags(jobCron, jobEvery, jobAt)
	if err != nil {
		return err
	}
	payload := cron.Payload{Action: strings.ToLower(jobAction)}
	if payload.Action == cron.ActionBroadcast {
		payload.Channel = jobChannel
		payload.Message = jobMessage
	}

	svc, err := loadJobs()
	if err != nil {
		return err
	}
	job, err := svc.AddJob(args[0], schedule, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added job %s (%s)\n", job.ID, describeSchedule(job.Schedule))
	return nil
}

func runJobsRemove(cmd *cobra.Command, args []string) error {
	svc, err := loadJobs()
	if err != nil {
		return err
	}
	if err := svc.RemoveJob(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", args[0])
	return nil
}

func runJobsToggle(cmd *cobra.Command, id string, enabled bool) error {
	svc, err := loadJobs()
	if err != nil {
		return err
	}
	job, err := svc.EnableJob(id, enabled)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s enabled=%v\n", job.ID, job.Enabled)
	return nil
}
