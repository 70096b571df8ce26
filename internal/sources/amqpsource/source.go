// Package amqpsource implements sources.Source over RabbitMQ: a
// dial-with-retry connection, one queue per market-data stream, and
// auto-ack consumption fed onto an internal channel that NextBar reads
// from. Reconnection backoff uses golang.org/x/time/rate rather than a
// fixed sleep, so a flapping broker doesn't retry in lockstep with
// every other symbol's source.
package amqpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/marksmithsgit/lumen-engine/internal/market"
)

const (
	dialRetryLimit = 10
	staleThreshold = 3 * time.Second
)

// wireBar is the JSON shape published onto a Market_Data_Bars_<SYMBOL>
// queue: the bar fields plus a producer timestamp used for staleness
// rejection.
type wireBar struct {
	Instrument string  `json:"instrument"`
	ProducedAt int64   `json:"producedAt"`
	Timestamp  int64   `json:"timestamp"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     uint64  `json:"volume"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
}

// Source consumes bars for a fixed set of instruments from RabbitMQ
// queues named "Market_Data_Bars_<SYMBOL>".
type Source struct {
	uri     string
	conn    *amqp091.Connection
	channel *amqp091.Channel
	bars    chan market.Bar
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New returns an unconnected Source. Call Connect before Subscribe.
func New(amqpURI string, log zerolog.Logger) *Source {
	return &Source{
		uri:     amqpURI,
		bars:    make(chan market.Bar, 1000),
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		log:     log.With().Str("component", "amqpsource").Logger(),
	}
}

// Connect dials RabbitMQ, retrying up to dialRetryLimit times with a
// rate-limited backoff between attempts.
func (s *Source) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= dialRetryLimit; attempt++ {
		conn, err := amqp091.Dial(s.uri)
		if err == nil {
			s.conn = conn
			ch, err := conn.Channel()
			if err != nil {
				conn.Close()
				return fmt.Errorf("amqpsource: open channel: %w", err)
			}
			if err := ch.Qos(1, 0, false); err != nil {
				s.log.Warn().Err(err).Msg("failed to set QoS")
			}
			s.channel = ch
			return nil
		}
		lastErr = err
		s.log.Warn().Int("attempt", attempt).Err(err).Msg("rabbitmq connection attempt failed")
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("amqpsource: connect cancelled: %w", err)
		}
	}
	return fmt.Errorf("amqpsource: failed to connect after %d attempts: %w", dialRetryLimit, lastErr)
}

// Subscribe starts one consumer goroutine per symbol's bar queue,
// unmarshaling each delivery into a market.Bar and pushing it onto the
// internal channel NextBar drains.
func (s *Source) Subscribe(ctx context.Context, symbols []string) error {
	if s.channel == nil {
		return fmt.Errorf("amqpsource: Subscribe called before Connect")
	}
	for _, symbol := range symbols {
		queueName := fmt.Sprintf("Market_Data_Bars_%s", symbol)
		msgs, err := s.channel.Consume(queueName, "", true, false, false, false, nil)
		if err != nil {
			s.log.Warn().Str("queue", queueName).Err(err).Msg("failed to register consumer, symbol will not receive data")
			continue
		}
		go s.consume(queueName, msgs)
	}
	return nil
}

func (s *Source) consume(queueName string, msgs <-chan amqp091.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("queue", queueName).Msg("consumer goroutine panicked")
		}
	}()
	for d := range msgs {
		var w wireBar
		if err := json.Unmarshal(d.Body, &w); err != nil {
			s.log.Warn().Err(err).Str("queue", queueName).Msg("failed to unmarshal bar")
			continue
		}
		if time.Now().UnixMilli()-w.ProducedAt > staleThreshold.Milliseconds() {
			continue
		}
		bar := market.Bar{
			Symbol: w.Instrument, TimestampMs: w.Timestamp,
			Open: w.Open, High: w.High, Low: w.Low, Close: w.Close,
			Volume: w.Volume, Bid: w.Bid, Ask: w.Ask,
		}
		if err := bar.Validate(); err != nil {
			s.log.Warn().Err(err).Str("queue", queueName).Msg("invalid bar dropped")
			continue
		}
		select {
		case s.bars <- bar:
		default:
			s.log.Warn().Str("symbol", w.Instrument).Msg("source channel full, bar dropped")
		}
	}
	s.log.Info().Str("queue", queueName).Msg("consumer shut down")
}

// NextBar blocks until a bar is available or ctx is cancelled.
func (s *Source) NextBar(ctx context.Context) (market.Bar, error) {
	select {
	case b := <-s.bars:
		return b, nil
	case <-ctx.Done():
		return market.Bar{}, ctx.Err()
	}
}

// Disconnect closes the channel and connection.
func (s *Source) Disconnect(ctx context.Context) error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
