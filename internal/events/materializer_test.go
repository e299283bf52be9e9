package events_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/vms-worker/internal/dedup"
	"github.com/technosupport/vms-worker/internal/detect"
	"github.com/technosupport/vms-worker/internal/events"
	"github.com/technosupport/vms-worker/internal/geometry"
	"github.com/technosupport/vms-worker/internal/store"
)

type fakePublisher struct {
	published []store.Event
}

func (f *fakePublisher) PublishEvent(_ context.Context, _ uuid.UUID, event store.Event) error {
	f.published = append(f.published, event)
	return nil
}

func newMaterializer(t *testing.T) (*events.Materializer, sqlmock.Sqlmock, *fakePublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pub := &fakePublisher{}
	m := &events.Materializer{
		Events:    store.EventModel{DB: db},
		Dedup:     dedup.New(30*time.Second, 3),
		Publisher: pub,
	}
	return m, mock, pub
}

func expectInsert(mock sqlmock.Sqlmock) {
	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow(id, time.Now())
	mock.ExpectQuery("INSERT INTO events").WillReturnRows(rows)
}

func TestMaterialize_PPEMode_EmitsAndPersistsOneViolation(t *testing.T) {
	m, mock, pub := newMaterializer(t)
	expectInsert(mock)

	fc := events.FrameContext{
		OrganizationID: uuid.New(),
		CameraID:       uuid.New(),
		Mode:           store.ModePPE,
		FrameWidth:     640,
		FrameHeight:    480,
	}
	person := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassPerson, Confidence: 0.5}
	noHardhat := detect.Detection{Box: geometry.Box{X1: 10, Y1: 0, X2: 90, Y2: 60}, ClassID: detect.ClassNoHardhat}

	m.Materialize(context.Background(), fc, []detect.Detection{person, noHardhat})

	require.Len(t, pub.published, 1)
	require.Equal(t, store.ViolationNoHardhat, pub.published[0].ViolationKind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_PPEMode_CompliantPersonEmitsNothing(t *testing.T) {
	m, mock, pub := newMaterializer(t)

	fc := events.FrameContext{OrganizationID: uuid.New(), CameraID: uuid.New(), Mode: store.ModePPE, FrameWidth: 640, FrameHeight: 480}
	person := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassPerson}
	hardhat := detect.Detection{Box: geometry.Box{X1: 10, Y1: 0, X2: 90, Y2: 60}, ClassID: detect.ClassHardhat}
	vest := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassSafetyVest}

	m.Materialize(context.Background(), fc, []detect.Detection{person, hardhat, vest})

	require.Empty(t, pub.published)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_DuplicateWithinCooldownSuppressedAfterFirst(t *testing.T) {
	m, mock, pub := newMaterializer(t)
	expectInsert(mock)

	fc := events.FrameContext{OrganizationID: uuid.New(), CameraID: uuid.New(), Mode: store.ModePPE, FrameWidth: 640, FrameHeight: 480}
	person := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassPerson}
	noHardhat := detect.Detection{Box: geometry.Box{X1: 10, Y1: 0, X2: 90, Y2: 60}, ClassID: detect.ClassNoHardhat}
	dets := []detect.Detection{person, noHardhat}

	m.Materialize(context.Background(), fc, dets)
	m.Materialize(context.Background(), fc, dets)

	require.Len(t, pub.published, 1, "second sighting within the cooldown must not persist or publish again")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_ZoneMode_EmitsZoneBreachAsCritical(t *testing.T) {
	m, mock, pub := newMaterializer(t)
	expectInsert(mock)

	fc := events.FrameContext{
		OrganizationID: uuid.New(),
		CameraID:       uuid.New(),
		Mode:           store.ModeZone,
		ZonePolygon:    geometry.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}},
		FrameWidth:     640,
		FrameHeight:    480,
	}
	person := detect.Detection{Box: geometry.Box{X1: 10, Y1: 10, X2: 50, Y2: 60}, ClassID: detect.ClassPerson}

	m.Materialize(context.Background(), fc, []detect.Detection{person})

	require.Len(t, pub.published, 1)
	require.Equal(t, store.SeverityCritical, pub.published[0].Severity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_HighConfidenceViolationEscalatesToCritical(t *testing.T) {
	m, mock, pub := newMaterializer(t)
	expectInsert(mock)

	fc := events.FrameContext{OrganizationID: uuid.New(), CameraID: uuid.New(), Mode: store.ModePPE, FrameWidth: 640, FrameHeight: 480}
	person := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassPerson, Confidence: 0.95}
	noVest := detect.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}, ClassID: detect.ClassNoSafetyVest}

	m.Materialize(context.Background(), fc, []detect.Detection{person, noVest})

	require.Len(t, pub.published, 1)
	require.Equal(t, store.SeverityCritical, pub.published[0].Severity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_NoPeopleDetected_EmitsNothing(t *testing.T) {
	m, mock, pub := newMaterializer(t)

	fc := events.FrameContext{OrganizationID: uuid.New(), CameraID: uuid.New(), Mode: store.ModePPE, FrameWidth: 640, FrameHeight: 480}
	m.Materialize(context.Background(), fc, nil)

	require.Empty(t, pub.published)
	require.NoError(t, mock.ExpectationsWereMet())
}
