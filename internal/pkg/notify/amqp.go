package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/rabbitmq/amqp091-go"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/reminder"
)

// RoutingKeyPrefix is followed by the bucket, e.g. "reminder.due.7".
const RoutingKeyPrefix = "reminder.due."

// publisher is one broker connection able to publish confirmed messages.
type publisher interface {
	Publish(ctx context.Context, exchange, key string, msg amqp091.Publishing) error
	IsClosed() bool
	Close() error
}

// AMQPNotifier publishes reminder events to a topic exchange for the
// external notification service. A publish only succeeds once the broker
// confirmed it. A dropped connection is redialed on the next send.
type AMQPNotifier struct {
	mu       sync.Mutex
	dial     func() (publisher, error)
	pub      publisher
	exchange string
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPNotifier dials the broker once up front so a bad URL or exchange
// fails at startup.
func NewAMQPNotifier(amqpURL, exchange string) (*AMQPNotifier, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	n := newAMQPNotifier(exchange, func() (publisher, error) {
		return dialSession(cleanURL, exchange)
	})
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.session(); err != nil {
		return nil, err
	}
	return n, nil
}

func newAMQPNotifier(exchange string, dial func() (publisher, error)) *AMQPNotifier {
	return &AMQPNotifier{dial: dial, exchange: exchange}
}

func (n *AMQPNotifier) SendReminder(ctx context.Context, notice reminder.Notice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     fmt.Sprintf("%s:%d", notice.CustomerID, notice.Bucket),
		CorrelationId: notice.RunID,
		Body:          body,
	}
	key := fmt.Sprintf("%s%d", RoutingKeyPrefix, notice.Bucket)

	n.mu.Lock()
	defer n.mu.Unlock()

	pub, err := n.session()
	if err != nil {
		return err
	}
	err = pub.Publish(ctx, n.exchange, key, msg)
	if errors.Is(err, amqp091.ErrClosed) {
		// The connection dropped since the last send; retry once on a fresh one.
		n.drop()
		if pub, err = n.session(); err != nil {
			return err
		}
		err = pub.Publish(ctx, n.exchange, key, msg)
	}
	if err != nil {
		if pub.IsClosed() {
			n.drop()
		}
		return err
	}
	log.Infof("[Notify] published %d-day reminder for customer %s", notice.Bucket, notice.CustomerID)
	return nil
}

// session returns the open publisher, dialing a new one when needed. Callers
// hold n.mu.
func (n *AMQPNotifier) session() (publisher, error) {
	if n.pub != nil && !n.pub.IsClosed() {
		return n.pub, nil
	}
	n.drop()
	pub, err := n.dial()
	if err != nil {
		return nil, err
	}
	n.pub = pub
	return pub, nil
}

func (n *AMQPNotifier) drop() {
	if n.pub != nil {
		_ = n.pub.Close()
		n.pub = nil
	}
}

// Close gracefully closes the channel and connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pub == nil {
		return nil
	}
	err := n.pub.Close()
	n.pub = nil
	return err
}

// amqpSession is a connection with one confirm-mode channel.
type amqpSession struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func dialSession(amqpURL, exchange string) (*amqpSession, error) {
	conn, err := amqp091.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := channel.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))
	go func() {
		if err := <-closed; err != nil {
			log.Warnf("[Notify] amqp connection closed: %v", err)
		}
	}()
	return &amqpSession{conn: conn, channel: channel}, nil
}

func (s *amqpSession) Publish(ctx context.Context, exchange, key string, msg amqp091.Publishing) error {
	confirm, err := s.channel.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish reminder: %w", err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return errors.New("broker rejected reminder event")
	}
	return nil
}

func (s *amqpSession) IsClosed() bool {
	return s.conn.IsClosed() || s.channel.IsClosed()
}

func (s *amqpSession) Close() error {
	if !s.channel.IsClosed() {
		_ = s.channel.Close()
	}
	if s.conn.IsClosed() {
		return nil
	}
	return s.conn.Close()
}
