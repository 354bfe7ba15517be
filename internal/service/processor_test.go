package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/battery-drain-worker/internal/db"
	"github.com/septivank/battery-drain-worker/internal/mq"
	"github.com/septivank/battery-drain-worker/internal/service"
	"github.com/septivank/battery-drain-worker/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const ingestedKey = "battery.readings.ingested"

func newProcessor(w *fakeWriter, p *fakePublisher, inv *fakeInvalidator) *service.ProcessorService {
	return service.NewProcessorService(w, p, inv, validator.NewValidator(10), nil, ingestedKey, zap.NewNop())
}

func ingestBody(t *testing.T, requestID string, readings ...string) []byte {
	t.Helper()
	raws := make([]json.RawMessage, 0, len(readings))
	for _, r := range readings {
		raws = append(raws, json.RawMessage(r))
	}
	body, err := json.Marshal(service.IngestMessage{
		RequestID:  requestID,
		Source:     "feed-test",
		ReceivedAt: time.Date(2019, 5, 18, 8, 0, 0, 0, time.UTC),
		Readings:   raws,
	})
	require.NoError(t, err)
	return body
}

const validReading = `{"academyId":30006,"batteryLevel":0.68,"employeeId":"T1007384","serialNumber":"1805C67HD02259","timestamp":"2019-05-17T07:47:25.833+01:00"}`

func TestProcessMessage_StoresAcceptedAndRejected(t *testing.T) {
	w, p, inv := &fakeWriter{}, &fakePublisher{}, &fakeInvalidator{}
	requestID := uuid.NewString()

	err := newProcessor(w, p, inv).ProcessMessage(context.Background(), ingestBody(t, requestID,
		validReading,
		`{"academyId":30006,"batteryLevel":1.4,"employeeId":"T1007384","serialNumber":"X","timestamp":"2019-05-17T07:47:25Z"}`,
		`{"academyId":"oops"}`,
	))
	require.NoError(t, err)

	require.Len(t, w.batches, 1)
	rows := w.batches[0]
	require.Len(t, rows, 3)

	assert.Equal(t, db.StatusValid, rows[0].ValidationStatus)
	assert.Equal(t, requestID, rows[0].RequestID.String())
	require.NotNil(t, rows[0].ReadingOffset)
	assert.Equal(t, 3600, *rows[0].ReadingOffset)
	require.NotNil(t, rows[0].SiteID)
	assert.Equal(t, 30006, *rows[0].SiteID)

	assert.Equal(t, db.StatusInvalid, rows[1].ValidationStatus)
	require.NotNil(t, rows[1].RejectionReason)
	assert.Contains(t, *rows[1].RejectionReason, "outside [0,1]")
	assert.NotNil(t, rows[1].SerialNumber)

	assert.Equal(t, db.StatusInvalid, rows[2].ValidationStatus)
	assert.Contains(t, *rows[2].RejectionReason, "malformed reading")
	assert.JSONEq(t, `{"academyId":"oops"}`, string(rows[2].RawPayload))

	assert.Equal(t, 1, inv.calls)

	events := p.byKey(ingestedKey)
	require.Len(t, events, 1)
	event := events[0].(mq.ReadingsIngestedEvent)
	assert.Equal(t, 1, event.Accepted)
	assert.Equal(t, 2, event.Rejected)
	assert.Equal(t, "feed-test", event.Source)
}

func TestProcessMessage_AllRejectedKeepsCache(t *testing.T) {
	w, p, inv := &fakeWriter{}, &fakePublisher{}, &fakeInvalidator{}

	err := newProcessor(w, p, inv).ProcessMessage(context.Background(), ingestBody(t, "", `{"batteryLevel":0.5}`))
	require.NoError(t, err)

	assert.Equal(t, 0, inv.calls)
	require.Len(t, w.batches, 1)
	_, err = uuid.Parse(w.batches[0][0].RequestID.String())
	assert.NoError(t, err)
}

func TestProcessMessage_InvalidJSON(t *testing.T) {
	w := &fakeWriter{}

	err := newProcessor(w, &fakePublisher{}, &fakeInvalidator{}).ProcessMessage(context.Background(), []byte("{broken"))
	require.Error(t, err)
	assert.Empty(t, w.batches)
}

func TestProcessMessage_EmptyBatch(t *testing.T) {
	err := newProcessor(&fakeWriter{}, &fakePublisher{}, &fakeInvalidator{}).
		ProcessMessage(context.Background(), ingestBody(t, uuid.NewString()))
	require.ErrorIs(t, err, service.ErrEmptyBatch)
}

func TestProcessMessage_StoreFailureIsReturned(t *testing.T) {
	w, p := &fakeWriter{err: errDatabaseDown}, &fakePublisher{}

	err := newProcessor(w, p, &fakeInvalidator{}).ProcessMessage(context.Background(), ingestBody(t, "", validReading))
	require.ErrorIs(t, err, errDatabaseDown)
	assert.Empty(t, p.byKey(ingestedKey))
}

func TestProcessMessage_PublishFailureIsNotFatal(t *testing.T) {
	w := &fakeWriter{}
	p := &fakePublisher{err: errDatabaseDown}

	err := newProcessor(w, p, &fakeInvalidator{}).ProcessMessage(context.Background(), ingestBody(t, "", validReading))
	require.NoError(t, err)
	assert.Len(t, w.batches, 1)
}
