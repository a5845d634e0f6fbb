package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// maxNotifyPayload is the largest payload Postgres accepts for NOTIFY.
const maxNotifyPayload = 7999

// PostgresBus fans envelopes out to every instance through LISTEN/NOTIFY.
type PostgresBus struct {
	db       *sql.DB
	listener *pq.Listener
	channel  string
	logger   zerolog.Logger

	mu       sync.RWMutex
	handlers []func(Envelope)

	done chan struct{}
	wg   sync.WaitGroup
}

func NewPostgresBus(db *sql.DB, dsn, channel string, logger zerolog.Logger) (*PostgresBus, error) {
	b := &PostgresBus{
		db:      db,
		channel: channel,
		logger:  logger.With().Str("component", "realtime_bus").Str("channel", channel).Logger(),
		done:    make(chan struct{}),
	}
	b.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, b.onListenerEvent)
	if err := b.listener.Listen(channel); err != nil {
		b.listener.Close()
		return nil, errors.Wrap(err, "listen")
	}

	b.wg.Add(1)
	go b.run()
	return b, nil
}

func (b *PostgresBus) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		b.logger.Info().Msg("realtime bus connected")
	case pq.ListenerEventDisconnected:
		b.logger.Warn().Err(err).Msg("realtime bus disconnected")
	case pq.ListenerEventReconnected:
		b.logger.Info().Msg("realtime bus reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		b.logger.Warn().Err(err).Msg("realtime bus connection attempt failed")
	}
}

func (b *PostgresBus) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case n, ok := <-b.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect; notifications sent meanwhile are lost.
			if n == nil {
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(n.Extra), &env); err != nil {
				b.logger.Warn().Err(err).Msg("dropping malformed realtime envelope")
				continue
			}
			b.deliver(env)
		case <-time.After(90 * time.Second):
			go func() {
				if err := b.listener.Ping(); err != nil {
					b.logger.Warn().Err(err).Msg("realtime bus ping failed")
				}
			}()
		}
	}
}

func (b *PostgresBus) deliver(env Envelope) {
	b.mu.RLock()
	handlers := make([]func(Envelope), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(env)
	}
}

func (b *PostgresBus) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	if len(payload) > maxNotifyPayload {
		return fmt.Errorf("realtime envelope too large: %d bytes", len(payload))
	}
	if _, err := b.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, b.channel, string(payload)); err != nil {
		return errors.Wrap(err, "pg_notify")
	}
	return nil
}

func (b *PostgresBus) Subscribe(handler func(Envelope)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *PostgresBus) Close() error {
	close(b.done)
	err := b.listener.Close()
	b.wg.Wait()
	return err
}
