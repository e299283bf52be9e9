package frontend_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/vms-worker/internal/broadcaster"
	"github.com/technosupport/vms-worker/internal/bus"
	"github.com/technosupport/vms-worker/internal/frontend"
	"github.com/technosupport/vms-worker/internal/store"
)

// recordingResponseWriter wraps httptest.ResponseRecorder with a mutex so
// the handler goroutine's writes and the test goroutine's reads of the
// buffered body never race.
type recordingResponseWriter struct {
	mu  sync.Mutex
	rec *httptest.ResponseRecorder
}

func (w *recordingResponseWriter) Header() http.Header {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec.Header()
}

func (w *recordingResponseWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec.Write(p)
}

func (w *recordingResponseWriter) WriteHeader(status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rec.WriteHeader(status)
}

func (w *recordingResponseWriter) Flush() {}

func (w *recordingResponseWriter) snapshot() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.rec.Body.Bytes()...)
}

func TestEventStreamHandler_RelaysPublishedEvents(t *testing.T) {
	broker := bus.NewMemBroker()
	h := &frontend.EventStreamHandler{Broker: broker}

	orgID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/organizations/"+orgID.String()+"/events", nil)
	req.SetPathValue("id", orgID.String())
	req = req.WithContext(ctx)
	rec := &recordingResponseWriter{rec: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req)
		close(done)
	}()

	// give the handler a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)

	ev := store.Event{
		ID:             uuid.New(),
		OrganizationID: orgID,
		CameraID:       uuid.New(),
		Kind:           store.EventPPEViolation,
		ViolationKind:  store.ViolationNoHardhat,
		Severity:       store.SeverityHigh,
		Confidence:     0.913,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, broker.PublishEvent(context.Background(), orgID, ev))

	require.Eventually(t, func() bool {
		return bytes.Contains(rec.snapshot(), []byte(ev.ID.String()))
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after context cancel")
	}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.snapshot(), &decoded))
	assert.Equal(t, ev.ID.String(), decoded["id"])
	assert.Equal(t, "no_hardhat", decoded["violation_type"])
	assert.Equal(t, 0.91, decoded["confidence"])
}

func TestMJPEGHandler_UnknownCameraReturns404(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	missingID := uuid.New()
	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)

	broker := bus.NewMemBroker()
	fanout := broadcaster.New(broker, 2)
	cameras := store.CameraModel{DB: db}

	h := &frontend.MJPEGHandler{Broadcaster: fanout, Broker: broker, Cameras: cameras}

	req := httptest.NewRequest(http.MethodGet, "/cameras/"+missingID.String()+"/stream.mjpeg", nil)
	req.SetPathValue("id", missingID.String())
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
