package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stellarlinkco/haiemet/internal/bus"
	"github.com/stellarlinkco/haiemet/internal/config"
	"github.com/stellarlinkco/haiemet/internal/logger"
)

type ChannelManager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	log      *logger.Logger
}

func NewChannelManager(cfg config.ChannelsConfig, b *bus.MessageBus, log *logger.Logger) (*ChannelManager, error) {
	if log == nil {
		log = logger.NewNop()
	}
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
		log:      log.Named("channel-mgr"),
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram, b)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		ch.SetLogger(log)
		m.Add(ch)
	}

	return m, nil
}

// Add registers ch and routes outbound messages for its name to it.
func (m *ChannelManager) Add(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			m.log.Error("send failed", "channel", ch.Name(), "chat", msg.ChatID, "error", err)
		}
	})
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(m.channels))

	for name, ch := range m.channels {
		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()
			m.log.Info("starting", "channel", name)
			if err := ch.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, ch)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

func (m *ChannelManager) StopAll() error {
	for name, ch := range m.channels {
		m.log.Info("stopping", "channel", name)
		if err := ch.Stop(); err != nil {
			m.log.Warn("stop failed", "channel", name, "error", err)
		}
	}
	return nil
}

func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
