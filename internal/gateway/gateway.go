package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/stellarlinkco/haiemet/internal/bus"
	"github.com/stellarlinkco/haiemet/internal/channel"
	"github.com/stellarlinkco/haiemet/internal/config"
	"github.com/stellarlinkco/haiemet/internal/cron"
	"github.com/stellarlinkco/haiemet/internal/dispatcher"
	"github.com/stellarlinkco/haiemet/internal/httpapi"
	"github.com/stellarlinkco/haiemet/internal/logger"
	"github.com/stellarlinkco/haiemet/internal/registry"
)

const (
	backupJobName   = "registry-backup"
	shutdownTimeout = 5 * time.Second
	publishTimeout  = 5 * time.Second
)

// Options for creating a Gateway
type Options struct {
	Logger *logger.Logger
	// Store replaces the store selected by cfg.Storage.
	Store registry.Store
	// DataDir holds cron jobs and backups. Defaults to config.DataDir().
	DataDir    string
	SignalChan chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	log        *logger.Logger
	dataDir    string
	bus        *bus.MessageBus
	reg        *registry.Registry
	dispatcher *dispatcher.Dispatcher
	channels   *channel.ChannelManager
	cron       *cron.Service
	http       *httpapi.Server
	signalChan chan os.Signal

	shutdownOnce sync.Once
	shutdownErr  error
}

// JobsPath is where scheduled jobs are kept under dataDir.
func JobsPath(dataDir string) string {
	return filepath.Join(dataDir, "cron", "jobs.json")
}

// OpenRegistry opens the store named by cfg and loads the registry from it.
func OpenRegistry(cfg *config.Config, log *logger.Logger) (*registry.Registry, error) {
	store, err := registry.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	return registry.Open(store, registry.WithLogger(log)), nil
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = config.DataDir()
	}

	g := &Gateway{
		cfg:        cfg,
		log:        log.Named("gateway"),
		dataDir:    dataDir,
		signalChan: opts.SignalChan,
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	if opts.Store != nil {
		g.reg = registry.Open(opts.Store, registry.WithLogger(log))
	} else {
		reg, err := OpenRegistry(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("open registry: %w", err)
		}
		g.reg = reg
	}

	g.dispatcher = dispatcher.New(g.reg, cfg.Bot, dispatcher.WithLogger(log))

	chMgr, err := channel.NewChannelManager(cfg.Channels, g.bus, log)
	if err != nil {
		_ = g.reg.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	g.http = httpapi.NewServer(g.reg, log, httpapi.WithUserAPI(cfg.Gateway.UserAPI))
	if cfg.Channels.WebSocket.Enabled {
		ws := channel.NewWebSocketChannel(cfg.Channels.WebSocket, g.bus)
		ws.SetLogger(log)
		chMgr.Add(ws)
		g.http.Handle("/ws", ws)
	}

	g.cron = cron.NewService(JobsPath(dataDir), log)
	g.cron.OnJob = g.runJob

	return g, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		_ = g.Shutdown()
		return fmt.Errorf("start channels: %w", err)
	}
	g.log.Info("channels started", "channels", g.channels.EnabledChannels())

	if g.cfg.Cron.Enabled {
		if err := g.cron.Start(ctx); err != nil {
			g.log.Warn("cron start failed", "error", err)
		}
		if err := g.ensureBackupJob(); err != nil {
			g.log.Warn("ensure backup job failed", "error", err)
		}
	}

	if g.cfg.Gateway.Port > 0 {
		addr := net.JoinHostPort(g.cfg.Gateway.Host, strconv.Itoa(g.cfg.Gateway.Port))
		if err := g.http.Start(addr); err != nil {
			g.log.Warn("status server disabled", "error", err)
		}
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		g.processLoop(ctx)
	}()

	snap := g.reg.Snapshot()
	g.log.Info("running", "users", snap.TotalUsers, "messages", snap.TotalMessages)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	g.log.Info("shutting down")
	cancel()
	<-loopDone
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.log.Debug("inbound", "channel", msg.Channel, "sender", msg.SenderID, "kind", msg.Kind, "content", truncate(msg.Content, 80))
			out, ok := g.dispatcher.Dispatch(msg)
			if !ok {
				continue
			}
			select {
			case g.bus.Outbound <- out:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) ensureBackupJob() error {
	expr := g.cfg.Cron.BackupExpr
	if expr == "" {
		return nil
	}
	_, err := g.cron.EnsureJob(backupJobName, cron.Schedule{Kind: cron.KindCron, Expr: expr}, cron.Payload{Action: cron.ActionBackup})
	return err
}

func (g *Gateway) runJob(job cron.CronJob) (string, error) {
	switch job.Payload.Action {
	case cron.ActionBackup:
		path, err := g.backup()
		if err != nil {
			return "", err
		}
		return "backup written to " + path, nil
	case cron.ActionBroadcast:
		n, err := g.broadcast(job.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("check-in sent to %d users", n), nil
	default:
		return "", fmt.Errorf("unknown job action %q", job.Payload.Action)
	}
}

// backup writes the current registry document under dataDir/backups.
func (g *Gateway) backup() (string, error) {
	doc := g.reg.Document()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal backup: %w", err)
	}
	dir := filepath.Join(g.dataDir, "backups")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	base := "registry-" + doc.SavedAt.UTC().Format("20060102-150405.000")
	for n := 1; ; n++ {
		name := base + ".json"
		if n > 1 {
			name = fmt.Sprintf("%s-%d.json", base, n)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create backup: %w", err)
		}
		_, werr := f.Write(data)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(path)
			return "", fmt.Errorf("write backup: %w", werr)
		}
		return path, nil
	}
}

// broadcast sends a mood check-in to every registered user.
func (g *Gateway) broadcast(p cron.Payload) (int, error) {
	content := dispatcher.RenderMoodCheckIn(g.cfg.Bot)
	if p.Message != "" {
		content = p.Message
	}

	sent := 0
	for _, u := range g.reg.Users() {
		msg := bus.OutboundMessage{
			Channel:   p.Channel,
			ChatID:    u.ID,
			Content:   content,
			ParseMode: bus.ParseModeMarkdown,
			Keyboard:  dispatcher.EmotionKeyboard(),
		}
		select {
		case g.bus.Outbound <- msg:
			sent++
		case <-time.After(publishTimeout):
			return sent, errors.New("outbound queue full")
		}
	}
	return sent, nil
}

// Shutdown stops every component and flushes the registry. It is safe to
// call more than once.
func (g *Gateway) Shutdown() error {
	g.shutdownOnce.Do(func() {
		g.cron.Stop()
		if err := g.channels.StopAll(); err != nil {
			g.log.Warn("stop channels", "error", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := g.http.Shutdown(ctx); err != nil {
			g.log.Warn("stop status server", "error", err)
		}

		if err := g.reg.Close(); err != nil {
			g.shutdownErr = fmt.Errorf("close registry: %w", err)
		}
		g.log.Info("shutdown complete")
	})
	return g.shutdownErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
