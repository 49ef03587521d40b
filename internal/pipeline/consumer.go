package internal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/queryinside/pipeline/shared/streaming"
	amqp "github.com/rabbitmq/amqp091-go"
	zlog "github.com/rs/zerolog/log"
)

var (
	ErrAlreadyRunning = errors.New("consumer is already running")
	ErrNotRunning     = errors.New("consumer is not running")
	ErrConnectionLost = errors.New("broker connection lost")
)

// How long Stop waits for the in-flight dispatch before closing the
// channel anyway.
const drainTimeout = 30 * time.Second

// Consumer owns the broker receive connection and drives dispatch.
// Exactly one loop goroutine runs per started consumer; a lost
// connection moves it to errored and an explicit Restart is required.
// deadLetterer lets tests observe forwarded deliveries.
type deadLetterer interface {
	Forward(ctx context.Context, body []byte, cause error)
}

type Consumer struct {
	cfg        Config
	dispatcher *Dispatcher
	status     *Status
	health     *Health
	deadLetter deadLetterer

	// connectFn lets tests feed the loop without a broker.
	connectFn func() (<-chan amqp.Delivery, error)

	mu    sync.Mutex
	state ConsumerState
	conn  *amqp.Connection
	ch    *amqp.Channel
	stop  chan struct{}
	done  chan struct{}
}

func NewConsumer(cfg Config, dispatcher *Dispatcher, status *Status, health *Health, deadLetter *DeadLetter) *Consumer {
	c := &Consumer{
		cfg:        cfg,
		dispatcher: dispatcher,
		status:     status,
		health:     health,
		deadLetter: deadLetter,
		state:      StateStopped,
	}
	c.connectFn = c.connect
	return c
}

func (c *Consumer) State() ConsumerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Start opens the broker connection and begins the receive loop. Only
// valid while stopped; a second Start never opens a second connection.
func (c *Consumer) Start() error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.state = StateStarting
	c.mu.Unlock()
	c.status.SetState(StateStarting)

	deliveries, err := c.connectFn()
	if err != nil {
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		c.status.SetState(StateStopped)
		c.status.SetLastError(err)
		return err
	}

	c.mu.Lock()
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.state = StateRunning
	stop, done := c.stop, c.done
	c.mu.Unlock()

	c.status.SetState(StateRunning)
	c.status.MarkStarted()

	go c.loop(deliveries, stop, done)

	zlog.Info().Str("queue", c.cfg.Queue).Msg("consumer running")
	return nil
}

func (c *Consumer) connect() (<-chan amqp.Delivery, error) {
	conn, err := newRabbitConnection(c.cfg.RabbitURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	// One unacked delivery at a time keeps dispatch strictly serial.
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, err
	}

	if err := initRabbit(ch, c.cfg); err != nil {
		conn.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(
		c.cfg.Queue, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.mu.Unlock()

	return deliveries, nil
}

func (c *Consumer) loop(deliveries <-chan amqp.Delivery, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				zlog.Error().Msg("broker delivery channel closed")
				c.health.Disconnect.Inc()
				c.setErrored(ErrConnectionLost)
				return
			}
			c.handleDelivery(delivery)
		}
	}
}

// handleDelivery decodes and dispatches one delivery. Every delivery is
// acknowledged: failures are contained at the handler level instead of
// redelivered, so a poisoned message can never block the queue.
func (c *Consumer) handleDelivery(delivery amqp.Delivery) {
	c.health.Received.Inc()
	ctx := context.Background()

	envelope, err := streaming.ParseEnvelope(delivery.Body)
	if err != nil {
		var unknown *streaming.UnknownServiceError
		if errors.As(err, &unknown) {
			zlog.Error().Err(err).Msg("dropping unroutable delivery")
			c.status.RecordRoutingError(err)
		} else {
			zlog.Error().Err(err).Msg("dropping malformed delivery")
			c.status.RecordParseError(err)
		}
		c.health.Dropped.Inc()
		c.forwardDeadLetter(delivery.Body, err)
		c.ack(delivery)
		return
	}

	outcome := c.dispatcher.Dispatch(ctx, envelope)
	if outcome.Kind == OutcomeRoutingError {
		c.forwardDeadLetter(delivery.Body, errors.New(outcome.Error))
	}
	c.ack(delivery)
}

// forwardDeadLetter bounds the forward so a hung queue can never
// stall the consumer loop.
func (c *Consumer) forwardDeadLetter(body []byte, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), deadLetterTimeout)
	defer cancel()

	c.deadLetter.Forward(ctx, body, cause)
}

func (c *Consumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		zlog.Error().Err(err).Msg("failed to ack delivery")
	}
}

// Stop drains the in-flight dispatch and closes the broker connection.
// Only valid while running.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.state = StateStopping
	stop, done := c.stop, c.done
	c.mu.Unlock()
	c.status.SetState(StateStopping)

	close(stop)
	select {
	case <-done:
	case <-time.After(drainTimeout):
		zlog.Warn().Msg("consumer did not drain in time, closing anyway")
	}

	c.closeBroker()

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	c.status.SetState(StateStopped)

	zlog.Info().Msg("consumer stopped")
	return nil
}

// Restart brings the consumer back to running. The lifecycle fields
// reset; historical counters survive. A start or stop already in
// flight keeps its guard: restart never forces the state over it, so
// a racing restart can never open a second connection.
func (c *Consumer) Restart() error {
	if c.State() == StateRunning {
		if err := c.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
	}

	c.mu.Lock()
	if c.state != StateStopped && c.state != StateErrored {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.state = StateStopped
	c.mu.Unlock()
	c.status.ResetLifecycle()

	return c.Start()
}

func (c *Consumer) setErrored(err error) {
	c.mu.Lock()
	if c.state != StateRunning {
		// Shutdown is under way or already done; the closing channel
		// is expected and must not resurrect the state machine.
		c.mu.Unlock()
		return
	}
	c.state = StateErrored
	c.mu.Unlock()

	c.status.SetState(StateErrored)
	c.status.SetLastError(err)
	c.closeBroker()
}

func (c *Consumer) closeBroker() {
	c.mu.Lock()
	ch, conn := c.ch, c.conn
	c.ch, c.conn = nil, nil
	c.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if conn != nil {
		conn.Close()
	}
}
