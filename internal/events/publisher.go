package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/rabbitmq/amqp091-go"

	"fund-transfers/internal/domain"
)

const TransferCompletedRoutingKey = "transfer.completed"

// TransferCompletedEvent is published once per committed transfer.
type TransferCompletedEvent struct {
	TransactionID   string    `json:"transaction_id"`
	SourceAccountID int64     `json:"source_account_id"`
	TargetAccountID int64     `json:"target_account_id"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	TransactionDate time.Time `json:"transaction_date"`
}

func NewTransferCompletedEvent(tx *domain.Transaction) TransferCompletedEvent {
	return TransferCompletedEvent{
		TransactionID:   tx.ID.String(),
		SourceAccountID: tx.SourceAccountID,
		TargetAccountID: tx.TargetAccountID,
		Amount:          tx.Amount.String(),
		Currency:        tx.Currency.String(),
		TransactionDate: tx.TransactionDate,
	}
}

// CanonicalBody encodes v as RFC 8785 canonical JSON, so equal events always
// produce identical bytes.
func CanonicalBody(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

type Publisher interface {
	PublishTransferCompleted(ctx context.Context, tx *domain.Transaction) error
	Close()
}

// NopPublisher drops every event. It stands in when no broker is configured or
// the broker was unreachable at startup.
type NopPublisher struct {
	logger *slog.Logger
}

func NewNopPublisher(logger *slog.Logger) *NopPublisher {
	return &NopPublisher{logger: logger}
}

func (p *NopPublisher) PublishTransferCompleted(ctx context.Context, tx *domain.Transaction) error {
	p.logger.Debug("Event publish skipped", "routing_key", TransferCompletedRoutingKey, "transaction_id", tx.ID)
	return nil
}

func (p *NopPublisher) Close() {}

// amqpChannel is the part of *amqp091.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

var errPublisherClosed = errors.New("publisher closed")

type RabbitPublisher struct {
	mu          sync.Mutex
	channel     amqpChannel
	openChannel func() (amqpChannel, error)
	closeConn   func() error
	closed      bool
	exchange    string
	logger      *slog.Logger
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

// NewRabbitPublisher dials the broker and declares the durable topic exchange events go to.
func NewRabbitPublisher(amqpURL, exchange string, logger *slog.Logger) (*RabbitPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	openChannel := func() (amqpChannel, error) {
		return conn.Channel()
	}
	p, err := newRabbitPublisher(openChannel, conn.Close, exchange, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func newRabbitPublisher(openChannel func() (amqpChannel, error), closeConn func() error, exchange string, logger *slog.Logger) (*RabbitPublisher, error) {
	ch, err := openChannel()
	if err != nil {
		return nil, err
	}

	p := &RabbitPublisher{
		channel:     ch,
		openChannel: openChannel,
		closeConn:   closeConn,
		exchange:    exchange,
		logger:      logger,
	}
	if err := p.declare(); err != nil {
		ch.Close()
		return nil, err
	}
	return p, nil
}

func (p *RabbitPublisher) declare() error {
	return p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	)
}

func (p *RabbitPublisher) PublishTransferCompleted(ctx context.Context, tx *domain.Transaction) error {
	body, err := CanonicalBody(NewTransferCompletedEvent(tx))
	if err != nil {
		return fmt.Errorf("encode transfer event: %w", err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    tx.ID.String(),
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errPublisherClosed
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, TransferCompletedRoutingKey, false, false, msg)
	if err == nil {
		return nil
	}

	// One reopen attempt: a closed channel is the common failure after a broker hiccup.
	p.logger.Warn("Publish failed, reopening channel", "exchange", p.exchange, "error", err)
	if closeErr := p.channel.Close(); closeErr != nil {
		p.logger.Debug("Closing failed channel", "error", closeErr)
	}
	ch, chErr := p.openChannel()
	if chErr != nil {
		return err
	}
	p.channel = ch
	if err := p.declare(); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, TransferCompletedRoutingKey, false, false, msg)
}

// Close releases the channel and the connection. It is safe to call while a
// publish is in flight and more than once.
func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.channel != nil {
		p.channel.Close()
	}
	if p.closeConn != nil {
		p.closeConn()
	}
}
