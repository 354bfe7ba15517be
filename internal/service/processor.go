package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/battery-drain-worker/internal/db"
	"github.com/septivank/battery-drain-worker/internal/logging"
	"github.com/septivank/battery-drain-worker/internal/mq"
	"github.com/septivank/battery-drain-worker/internal/observability"
	"github.com/septivank/battery-drain-worker/internal/repository"
	"github.com/septivank/battery-drain-worker/internal/validator"
	"go.uber.org/zap"
)

// ErrEmptyBatch is returned for ingest messages carrying no readings
var ErrEmptyBatch = errors.New("message contains no readings")

// IngestMessage represents the incoming message from RabbitMQ
type IngestMessage struct {
	RequestID  string            `json:"request_id"`
	Source     string            `json:"source"`
	ReceivedAt time.Time         `json:"received_at"`
	Readings   []json.RawMessage `json:"readings"`
}

// ReadingWriter persists one ingest batch atomically
type ReadingWriter interface {
	InsertBatch(ctx context.Context, rows []db.BatteryReading) error
}

// EventPublisher publishes JSON events under a routing key
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Invalidator drops cached reading batches
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ProcessorService handles message processing logic
type ProcessorService struct {
	writer      ReadingWriter
	publisher   EventPublisher
	invalidator Invalidator
	validator   *validator.Validator
	metrics     *observability.Metrics
	routingKey  string
	logger      *zap.Logger
}

// NewProcessorService creates a new processor service
func NewProcessorService(
	writer ReadingWriter,
	publisher EventPublisher,
	invalidator Invalidator,
	validator *validator.Validator,
	metrics *observability.Metrics,
	routingKey string,
	logger *zap.Logger,
) *ProcessorService {
	return &ProcessorService{
		writer:      writer,
		publisher:   publisher,
		invalidator: invalidator,
		validator:   validator,
		metrics:     metrics,
		routingKey:  routingKey,
		logger:      logger,
	}
}

// ProcessMessage validates and stores every reading of an ingest message
func (s *ProcessorService) ProcessMessage(ctx context.Context, body []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	requestID, err := uuid.Parse(msg.RequestID)
	if err != nil {
		requestID = uuid.New()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	reqLogger := logging.WithRequestID(s.logger, requestID.String())
	reqLogger.Info("processing message",
		zap.String("source", msg.Source),
		zap.Int("reading_count", len(msg.Readings)),
	)

	if len(msg.Readings) == 0 {
		return ErrEmptyBatch
	}

	rows := make([]db.BatteryReading, 0, len(msg.Readings))
	accepted := 0
	for _, raw := range msg.Readings {
		row := s.buildRow(requestID, raw, msg.ReceivedAt)
		if row.ValidationStatus == db.StatusValid {
			accepted++
		} else {
			reqLogger.Debug("reading rejected", zap.String("reason", *row.RejectionReason))
		}
		rows = append(rows, row)
	}
	rejected := len(rows) - accepted

	if err := s.writer.InsertBatch(ctx, rows); err != nil {
		reqLogger.Error("failed to store readings", zap.Error(err))
		return fmt.Errorf("failed to store readings: %w", err)
	}
	s.metrics.ReadingsIngested(accepted, rejected)

	if accepted > 0 {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			reqLogger.Warn("failed to invalidate reading cache", zap.Error(err))
		}
	}

	event := mq.ReadingsIngestedEvent{
		RequestID:  requestID.String(),
		Source:     msg.Source,
		Accepted:   accepted,
		Rejected:   rejected,
		ReceivedAt: msg.ReceivedAt,
	}
	if err := s.publisher.Publish(ctx, s.routingKey, event); err != nil {
		// Log error but don't fail the entire message processing
		reqLogger.Error("failed to publish ingested event", zap.Error(err))
	}

	reqLogger.Info("message processed successfully",
		zap.Int("accepted", accepted),
		zap.Int("rejected", rejected),
	)

	return nil
}

func (s *ProcessorService) buildRow(requestID uuid.UUID, raw json.RawMessage, receivedAt time.Time) db.BatteryReading {
	row := db.BatteryReading{
		ID:               uuid.New(),
		RequestID:        requestID,
		ReceivedAt:       receivedAt,
		ValidationStatus: db.StatusValid,
		RawPayload:       raw,
	}

	rawReading, err := validator.DecodeRawReading(raw)
	if err != nil {
		reason := err.Error()
		row.ValidationStatus = db.StatusInvalid
		row.RejectionReason = &reason
		return row
	}

	reading, result := s.validator.ValidateReading(rawReading, receivedAt)

	// keep whatever was decoded so rejected rows stay searchable
	if id := rawReading.AcademyID; id != nil && *id >= math.MinInt32 && *id <= math.MaxInt32 {
		site := int(*id)
		row.SiteID = &site
	}
	row.BatteryLevel = rawReading.BatteryLevel
	row.OperatorID = rawReading.EmployeeID
	row.SerialNumber = rawReading.SerialNumber

	if !reading.Timestamp.IsZero() {
		ts := reading.Timestamp
		offset := repository.OffsetOf(ts)
		row.ReadingTimestamp = &ts
		row.ReadingOffset = &offset
	}

	if !result.IsValid {
		row.ValidationStatus = db.StatusInvalid
		row.RejectionReason = &result.RejectionReason
	}

	return row
}
