package wizard

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/capture"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

var testPosition = models.GeoPosition{Latitude: 28.6139, Longitude: 77.209}

// ---------- фейки ----------

type fakeLocator struct {
	gate chan struct{}
	pos  models.GeoPosition
	err  error
}

func (l *fakeLocator) RequestPosition(ctx context.Context) (models.GeoPosition, error) {
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return models.GeoPosition{}, ctx.Err()
		}
	}
	return l.pos, l.err
}

type fakeStream struct {
	mu    sync.Mutex
	stops int
}

func (s *fakeStream) Frame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// fakeCamera открывает поток только после закрытия gate (если он задан).
// firstGate задерживает только первый вызов и сообщает о нем через firstStarted.
type fakeCamera struct {
	gate         chan struct{}
	firstGate    chan struct{}
	firstStarted chan struct{}
	mu           sync.Mutex
	calls        int
	streams      []*fakeStream
}

func (c *fakeCamera) Open(ctx context.Context, _ capture.StreamConstraints) (capture.Stream, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()
	if first && c.firstGate != nil {
		close(c.firstStarted)
		<-c.firstGate
	}
	if c.gate != nil {
		<-c.gate
	}
	s := &fakeStream{}
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeCamera) Streams() []*fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeStream(nil), c.streams...)
}

type bytesPicker struct{ data []byte }

func (p bytesPicker) Pick(context.Context) (string, []byte, error) {
	return "photo.jpg", p.data, nil
}

// jpegBytes - минимальный заголовок, по которому mimetype узнает JPEG
var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9}

type fakeTagger struct {
	mu    sync.Mutex
	calls int
}

func (t *fakeTagger) Embed(media *models.CapturedMedia, pos models.GeoPosition) *models.CapturedMedia {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	out := *media
	p := pos
	out.GeoTag = &p
	return &out
}

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []models.CreateIssuePayload
	err      error
}

func (s *fakeSubmitter) CreateIssue(_ context.Context, p models.CreateIssuePayload) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Issue{ID: uuid.New(), Title: p.Title, Status: models.StatusSubmitted}, nil
}

type fakeQueue struct {
	payloads []models.CreateIssuePayload
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, p models.CreateIssuePayload) error {
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, p)
	return nil
}

type fixture struct {
	wizard    *Wizard
	locator   *fakeLocator
	camera    *fakeCamera
	media     *capture.MediaCapture
	tagger    *fakeTagger
	submitter *fakeSubmitter
	queue     *fakeQueue
}

func newFixture(probe capture.StaticProbe, opts Options) *fixture {
	f := &fixture{
		locator:   &fakeLocator{pos: testPosition},
		camera:    &fakeCamera{},
		tagger:    &fakeTagger{},
		submitter: &fakeSubmitter{},
		queue:     &fakeQueue{},
	}
	logger := newTestLogger()
	f.media = capture.NewMediaCapture(probe, f.camera, bytesPicker{data: jpegBytes}, logger)
	f.wizard = New(f.locator, f.media, f.tagger, f.submitter, f.queue, opts, logger)
	return f
}

// toConfirming проводит мастер до последнего шага с загруженным снимком
func (f *fixture) toConfirming(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.wizard.Open(ctx))
	f.wizard.Wait()
	require.NoError(t, f.wizard.Upload(ctx))
	require.NoError(t, f.wizard.Next())
	require.NoError(t, f.wizard.SetDescription("Deep pothole near the bus stop"))
	require.NoError(t, f.wizard.Next())
	require.Equal(t, Confirming, f.wizard.State())
}

// ---------- тесты ----------

func TestOpen_StartsCaptureAndLocate(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})

	require.NoError(t, f.wizard.Open(context.Background()))
	f.wizard.Wait()

	assert.Equal(t, Capturing, f.wizard.State())
	assert.Equal(t, models.CategoryPothole, f.wizard.Draft().Category)
	require.NotNil(t, f.wizard.Position())
	assert.Equal(t, testPosition.Latitude, f.wizard.Position().Latitude)
	assert.Equal(t, Actions{Capture: true, Upload: true}, f.wizard.Actions())
	assert.Empty(t, f.wizard.Warnings())

	assert.ErrorIs(t, f.wizard.Open(context.Background()), ErrInvalidTransition)
}

func TestNext_RequiresPhoto(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	require.NoError(t, f.wizard.Open(context.Background()))
	f.wizard.Wait()

	assert.ErrorIs(t, f.wizard.Next(), ErrPhotoRequired)
	assert.Equal(t, Capturing, f.wizard.State())
}

func TestNext_RequiresDescription(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	ctx := context.Background()
	require.NoError(t, f.wizard.Open(ctx))
	f.wizard.Wait()
	require.NoError(t, f.wizard.Capture())
	require.NoError(t, f.wizard.Next())

	assert.ErrorIs(t, f.wizard.Next(), ErrDescriptionRequired)
	assert.False(t, f.wizard.Actions().Next)
	assert.Equal(t, Describing, f.wizard.State())

	// пустой считается только пустая строка
	require.NoError(t, f.wizard.SetDescription(" "))
	assert.True(t, f.wizard.Actions().Next)
	require.NoError(t, f.wizard.Next())
	assert.Equal(t, Confirming, f.wizard.State())
	assert.Equal(t, " ", f.wizard.Confirmation().Description)
}

func TestCapture_ReleasesStreamOnNext(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	require.NoError(t, f.wizard.Open(context.Background()))
	f.wizard.Wait()

	require.NoError(t, f.wizard.Capture())
	assert.True(t, f.wizard.Draft().Photo != nil)
	require.NoError(t, f.wizard.Next())

	streams := f.camera.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, 1, streams[0].Stops())
	assert.Nil(t, f.media.Active())
}

func TestBack_ReopensCamera(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	f.toConfirming(t)

	require.NoError(t, f.wizard.Back())
	assert.Equal(t, Describing, f.wizard.State())
	require.NoError(t, f.wizard.Back())
	assert.Equal(t, Capturing, f.wizard.State())
	f.wizard.Wait()

	assert.Len(t, f.camera.Streams(), 2)
	assert.True(t, f.wizard.Actions().Capture)
	assert.ErrorIs(t, f.wizard.Back(), ErrInvalidTransition)
}

func TestPhotoIsGeotagged(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	f.toConfirming(t)

	c := f.wizard.Confirmation()
	assert.True(t, c.HasPhoto)
	assert.True(t, c.Geotagged)
	assert.Equal(t, "28.6139, 77.2090", c.Location)
	assert.Equal(t, DefaultTitle, c.Title)
	assert.Equal(t, 1, f.tagger.calls)
}

func TestPhotoTaggedWhenPositionArrivesLater(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	f.locator.gate = make(chan struct{})
	ctx := context.Background()

	require.NoError(t, f.wizard.Open(ctx))
	require.NoError(t, f.wizard.Upload(ctx))
	assert.Nil(t, f.wizard.Draft().Photo.GeoTag)
	assert.Equal(t, LocatingLabel, f.wizard.Confirmation().Location)

	close(f.locator.gate)
	f.wizard.Wait()

	require.NotNil(t, f.wizard.Draft().Photo.GeoTag)
	assert.Equal(t, testPosition.Latitude, f.wizard.Draft().Photo.GeoTag.Latitude)
}

func TestSubmit_Success(t *testing.T) {
	var created *models.Issue
	f := newFixture(capture.StaticProbe{}, Options{UserID: "user-1", OnCreated: func(i *models.Issue) { created = i }})
	f.toConfirming(t)

	out, err := f.wizard.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Submitted, out.State)
	require.NotNil(t, out.Issue)
	assert.Same(t, out.Issue, created)
	assert.Equal(t, Idle, f.wizard.State())
	assert.Empty(t, f.queue.payloads)

	require.Len(t, f.submitter.payloads, 1)
	p := f.submitter.payloads[0]
	assert.Equal(t, DefaultTitle, p.Title)
	assert.Equal(t, DefaultAddress, p.Address)
	assert.Equal(t, DefaultWardID, p.WardID)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, models.GeoPoint{Lat: testPosition.Latitude, Lng: testPosition.Longitude}, p.Location)
	assert.Contains(t, p.PhotoBase64, "data:image/jpeg;base64,")
}

func TestSubmit_OfflineQueues(t *testing.T) {
	var notices []string
	f := newFixture(capture.StaticProbe{}, Options{OnNotice: func(n string) { notices = append(notices, n) }})
	f.submitter.err = errors.New("network unreachable")
	f.toConfirming(t)
	require.NoError(t, f.wizard.SetTitle("  Broken road  "))
	require.NoError(t, f.wizard.SetCategory(models.CategoryGarbage))

	out, err := f.wizard.Submit(context.Background())

	require.NoError(t, err, "офлайн-отправка - мягкий успех")
	assert.Equal(t, Queued, out.State)
	assert.Equal(t, OfflineNotice, out.Notice)
	assert.Equal(t, []string{OfflineNotice}, notices)
	assert.Equal(t, Idle, f.wizard.State())
	require.Len(t, f.queue.payloads, 1)
	assert.Equal(t, "Broken road", f.queue.payloads[0].Title)
	assert.Equal(t, models.CategoryGarbage, f.queue.payloads[0].Category)
	assert.Equal(t, f.submitter.payloads[0], f.queue.payloads[0])
}

func TestSubmit_EnqueueFailureKeepsDraft(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	f.submitter.err = errors.New("network unreachable")
	f.queue.err = errors.New("disk full")
	f.toConfirming(t)

	_, err := f.wizard.Submit(context.Background())

	require.Error(t, err)
	assert.Equal(t, Confirming, f.wizard.State())
	assert.True(t, f.wizard.Actions().Submit, "можно повторить отправку")

	f.submitter.err = nil
	out, err := f.wizard.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Submitted, out.State)
}

func TestSubmit_RequiresPosition(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	f.locator.err = capture.ErrTimeout
	f.toConfirming(t)

	assert.False(t, f.wizard.Actions().Submit)
	_, err := f.wizard.Submit(context.Background())
	assert.ErrorIs(t, err, ErrPositionRequired)
	assert.Empty(t, f.submitter.payloads)

	// повторный запрос позиции открывает отправку
	f.locator.err = nil
	require.NoError(t, f.wizard.RetryPosition())
	f.wizard.Wait()
	assert.True(t, f.wizard.Actions().Submit)
	assert.Empty(t, f.wizard.Warnings())
}

func TestSubmit_WrongStep(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	_, err := f.wizard.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWarnings_CameraUnavailable(t *testing.T) {
	f := newFixture(capture.StaticProbe{CameraAvailability: capture.Unavailable}, Options{})
	require.NoError(t, f.wizard.Open(context.Background()))
	f.wizard.Wait()

	warnings := f.wizard.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, ChannelCamera, warnings[0].Channel)
	assert.Contains(t, warnings[0].Message(), "Upload a photo instead")
	assert.False(t, f.wizard.Actions().Capture)
	assert.ErrorIs(t, f.wizard.Capture(), capture.ErrNoActiveStream)

	// запасной путь через файл работает
	require.NoError(t, f.wizard.Upload(context.Background()))
	assert.NoError(t, f.wizard.Next())
}

func TestWarnings_LocationDenied(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	f.locator.err = capture.ErrPermissionDenied
	require.NoError(t, f.wizard.Open(context.Background()))
	f.wizard.Wait()

	warnings := f.wizard.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, ChannelLocation, warnings[0].Channel)
	assert.Equal(t, "Location access was denied. Allow it and retry.", warnings[0].Message())
}

func TestClose_StopsLateStream(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	f.camera.gate = make(chan struct{})

	require.NoError(t, f.wizard.Open(context.Background()))
	f.wizard.Close()
	assert.Equal(t, Idle, f.wizard.State())

	close(f.camera.gate)
	f.wizard.Wait()

	streams := f.camera.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, 1, streams[0].Stops(), "поток, открытый после закрытия, останавливается ровно один раз")
}

func TestReopen_LateStreamFromClosedSessionIgnored(t *testing.T) {
	// Подготовка
	f := newFixture(capture.StaticProbe{}, Options{})
	f.camera.firstGate = make(chan struct{})
	f.camera.firstStarted = make(chan struct{})

	require.NoError(t, f.wizard.Open(context.Background()))
	<-f.camera.firstStarted
	f.wizard.Close()

	require.NoError(t, f.wizard.Open(context.Background()))
	require.Eventually(t, func() bool { return f.wizard.Actions().Capture }, time.Second, 5*time.Millisecond)

	// Действие
	close(f.camera.firstGate)
	f.wizard.Wait()

	// Проверки
	streams := f.camera.Streams()
	require.Len(t, streams, 2)
	current, stale := streams[0], streams[1]
	assert.Equal(t, 0, current.Stops(), "поток новой сессии продолжает работать")
	assert.Equal(t, 1, stale.Stops(), "поток закрытой сессии останавливается один раз")
	assert.Equal(t, Capturing, f.wizard.State())
	assert.True(t, f.wizard.Actions().Capture)
	require.NotNil(t, f.media.Active())

	require.NoError(t, f.wizard.Capture())
	require.NoError(t, f.wizard.Next())
	assert.Equal(t, 1, current.Stops(), "переход дальше освобождает камеру")
}

func TestClose_ResetsDraft(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	f.toConfirming(t)

	f.wizard.Close()

	assert.Equal(t, Idle, f.wizard.State())
	assert.Equal(t, Draft{}, f.wizard.Draft())
	assert.Nil(t, f.wizard.Position())
	assert.ErrorIs(t, f.wizard.SetTitle("x"), ErrInvalidTransition)

	// после закрытия можно начать заново
	require.NoError(t, f.wizard.Open(context.Background()))
	f.wizard.Wait()
	assert.Equal(t, Capturing, f.wizard.State())
}

func TestSetCategory_Unknown(t *testing.T) {
	f := newFixture(capture.StaticProbe{}, Options{})
	require.NoError(t, f.wizard.Open(context.Background()))
	f.wizard.Wait()

	assert.ErrorIs(t, f.wizard.SetCategory("volcano"), ErrInvalidCategory)
	assert.Equal(t, models.CategoryPothole, f.wizard.Draft().Category)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "confirming", Confirming.String())
	assert.Equal(t, "state(42)", State(42).String())
}
