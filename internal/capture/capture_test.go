package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shenikar/civic_issue_reporter/internal/geotag"
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

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 64, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

// ---------- GeoCapture ----------

type funcLocator func(ctx context.Context) (models.GeoPosition, error)

func (f funcLocator) CurrentPosition(ctx context.Context) (models.GeoPosition, error) {
	return f(ctx)
}

func blockingLocator() Locator {
	return funcLocator(func(ctx context.Context) (models.GeoPosition, error) {
		<-ctx.Done()
		return models.GeoPosition{}, ctx.Err()
	})
}

func TestRequestPosition_Success(t *testing.T) {
	want := models.GeoPosition{Latitude: 28.6139, Longitude: 77.209, Accuracy: 12}
	g := NewGeoCapture(StaticProbe{}, StaticLocator{Position: want}, time.Second, newTestLogger())

	pos, err := g.RequestPosition(context.Background())

	require.NoError(t, err)
	assert.Equal(t, want.Latitude, pos.Latitude)
	assert.Equal(t, want.Longitude, pos.Longitude)
	assert.Equal(t, want.Accuracy, pos.Accuracy)
	assert.False(t, pos.Timestamp.IsZero(), "время подставляется, если платформа его не дала")
}

func TestRequestPosition_Unavailable(t *testing.T) {
	called := false
	loc := funcLocator(func(ctx context.Context) (models.GeoPosition, error) {
		called = true
		return models.GeoPosition{}, nil
	})
	g := NewGeoCapture(StaticProbe{GeolocationAvailability: Unavailable}, loc, time.Second, newTestLogger())

	_, err := g.RequestPosition(context.Background())

	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.False(t, called)
}

func TestRequestPosition_Denied(t *testing.T) {
	g := NewGeoCapture(StaticProbe{GeolocationAvailability: Denied}, StaticLocator{}, time.Second, newTestLogger())

	_, err := g.RequestPosition(context.Background())

	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRequestPosition_PlatformDenial(t *testing.T) {
	loc := funcLocator(func(ctx context.Context) (models.GeoPosition, error) {
		return models.GeoPosition{}, ErrPermissionDenied
	})
	g := NewGeoCapture(StaticProbe{}, loc, time.Second, newTestLogger())

	_, err := g.RequestPosition(context.Background())

	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRequestPosition_Timeout(t *testing.T) {
	g := NewGeoCapture(StaticProbe{}, blockingLocator(), 20*time.Millisecond, newTestLogger())

	start := time.Now()
	_, err := g.RequestPosition(context.Background())

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRequestPosition_CallerCancel(t *testing.T) {
	g := NewGeoCapture(StaticProbe{}, blockingLocator(), time.Minute, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.RequestPosition(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestNewGeoCapture_DefaultTimeout(t *testing.T) {
	g := NewGeoCapture(StaticProbe{}, StaticLocator{}, 0, newTestLogger())
	assert.Equal(t, DefaultGeoTimeout, g.timeout)
}

func TestExifLocator(t *testing.T) {
	tagged, err := geotag.EmbedJPEG(encodeJPEG(t), models.GeoPosition{Latitude: -33.8688, Longitude: 151.2093})
	require.NoError(t, err)

	pos, err := ExifLocator{Photo: func() []byte { return tagged }}.CurrentPosition(context.Background())

	require.NoError(t, err)
	assert.InDelta(t, -33.8688, pos.Latitude, 1e-5)
	assert.InDelta(t, 151.2093, pos.Longitude, 1e-5)
}

func TestExifLocator_NoTags(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":      nil,
		"plain jpeg": encodeJPEG(t),
		"png":        encodePNG(t),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ExifLocator{Photo: func() []byte { return data }}.CurrentPosition(context.Background())
			assert.ErrorIs(t, err, ErrDeviceUnavailable)
		})
	}
}

// ---------- MediaCapture ----------

type fakeStream struct {
	mu    sync.Mutex
	stops int
	frame image.Image
}

func (s *fakeStream) Frame() (image.Image, error) {
	if s.frame == nil {
		return nil, errors.New("no frame")
	}
	return s.frame, nil
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

// fakeCamera отвечает ошибками по порядку, затем отдает поток
type fakeCamera struct {
	mu       sync.Mutex
	errs     []error
	requests []StreamConstraints
	streams  []*fakeStream
}

func (c *fakeCamera) Open(_ context.Context, sc StreamConstraints) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, sc)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	s := &fakeStream{frame: testImage()}
	c.streams = append(c.streams, s)
	return s, nil
}

type fakePicker struct {
	name string
	data []byte
	err  error
}

func (p fakePicker) Pick(context.Context) (string, []byte, error) {
	return p.name, p.data, p.err
}

func TestOpenStream_PrefersRearCameraWithAudio(t *testing.T) {
	cam := &fakeCamera{}
	m := NewMediaCapture(StaticProbe{}, cam, nil, newTestLogger())

	h, err := m.OpenStream(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StreamConstraints{Facing: FacingEnvironment, Audio: true}, h.Constraints())
	assert.Same(t, h, m.Active())
}

func TestOpenStream_FallsBack(t *testing.T) {
	cam := &fakeCamera{errs: []error{errors.New("no rear camera"), errors.New("no microphone")}}
	m := NewMediaCapture(StaticProbe{}, cam, nil, newTestLogger())

	h, err := m.OpenStream(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StreamConstraints{Facing: FacingAny, Audio: false}, h.Constraints())
	assert.Len(t, cam.requests, 3)
}

func TestOpenStream_AllAttemptsFail(t *testing.T) {
	fail := errors.New("busy")
	cam := &fakeCamera{errs: []error{fail, fail, fail}}
	m := NewMediaCapture(StaticProbe{}, cam, nil, newTestLogger())

	h, err := m.OpenStream(context.Background())

	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Nil(t, m.Active())
}

func TestOpenStream_PermissionStopsFallback(t *testing.T) {
	cam := &fakeCamera{errs: []error{ErrPermissionDenied}}
	m := NewMediaCapture(StaticProbe{}, cam, nil, newTestLogger())

	_, err := m.OpenStream(context.Background())

	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Len(t, cam.requests, 1)
}

func TestOpenStream_ProbeShortCircuits(t *testing.T) {
	tests := []struct {
		name  string
		avail Availability
		want  error
	}{
		{name: "unavailable", avail: Unavailable, want: ErrDeviceUnavailable},
		{name: "denied", avail: Denied, want: ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := &fakeCamera{}
			m := NewMediaCapture(StaticProbe{CameraAvailability: tt.avail}, cam, nil, newTestLogger())

			_, err := m.OpenStream(context.Background())

			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, cam.requests)
		})
	}
}

func TestOpenStream_StopsPreviousStream(t *testing.T) {
	cam := &fakeCamera{}
	m := NewMediaCapture(StaticProbe{}, cam, nil, newTestLogger())

	_, err := m.OpenStream(context.Background())
	require.NoError(t, err)
	second, err := m.OpenStream(context.Background())
	require.NoError(t, err)

	require.Len(t, cam.streams, 2)
	assert.Equal(t, 1, cam.streams[0].Stops())
	assert.Equal(t, 0, cam.streams[1].Stops())
	assert.Same(t, second, m.Active())
}

// slowFirstCamera задерживает первый Open до закрытия gate
type slowFirstCamera struct {
	fakeCamera
	started chan struct{}
	gate    chan struct{}
	calls   atomic.Int32
}

func (c *slowFirstCamera) Open(ctx context.Context, sc StreamConstraints) (Stream, error) {
	if c.calls.Add(1) == 1 {
		close(c.started)
		<-c.gate
	}
	return c.fakeCamera.Open(ctx, sc)
}

func TestOpenStream_LateStreamDoesNotReplaceNewer(t *testing.T) {
	// Подготовка
	cam := &slowFirstCamera{started: make(chan struct{}), gate: make(chan struct{})}
	m := NewMediaCapture(StaticProbe{}, cam, nil, newTestLogger())

	firstCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.OpenStream(firstCtx)
		done <- err
	}()
	<-cam.started
	cancel()

	current, err := m.OpenStream(context.Background())
	require.NoError(t, err)

	// Действие
	close(cam.gate)
	lateErr := <-done

	// Проверки
	assert.ErrorIs(t, lateErr, context.Canceled)
	require.Len(t, cam.streams, 2)
	assert.Equal(t, 0, cam.streams[0].Stops(), "текущий поток не трогается")
	assert.Equal(t, 1, cam.streams[1].Stops(), "опоздавший поток останавливается")
	assert.Same(t, current, m.Active())
}

func TestOpenStream_ReleasedWhileOpening(t *testing.T) {
	cam := &slowFirstCamera{started: make(chan struct{}), gate: make(chan struct{})}
	m := NewMediaCapture(StaticProbe{}, cam, nil, newTestLogger())

	done := make(chan error, 1)
	go func() {
		_, err := m.OpenStream(context.Background())
		done <- err
	}()
	<-cam.started
	m.Release()
	close(cam.gate)

	assert.ErrorIs(t, <-done, ErrStreamSuperseded)
	require.Len(t, cam.streams, 1)
	assert.Equal(t, 1, cam.streams[0].Stops())
	assert.Nil(t, m.Active())
}

func TestRelease_StopsOnce(t *testing.T) {
	cam := &fakeCamera{}
	m := NewMediaCapture(StaticProbe{}, cam, nil, newTestLogger())
	h, err := m.OpenStream(context.Background())
	require.NoError(t, err)

	m.Release()
	m.Release()
	h.Stop()

	assert.Equal(t, 1, cam.streams[0].Stops())
	assert.Nil(t, m.Active())
}

func TestCaptureFrame(t *testing.T) {
	cam := &fakeCamera{}
	m := NewMediaCapture(StaticProbe{}, cam, nil, newTestLogger())
	h, err := m.OpenStream(context.Background())
	require.NoError(t, err)

	media, err := m.CaptureFrame(h)

	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", media.MIMEType)
	assert.Equal(t, 32, media.Width)
	assert.Equal(t, 24, media.Height)
	_, err = jpeg.Decode(bytes.NewReader(media.Data))
	assert.NoError(t, err)
}

func TestCaptureFrame_NoStream(t *testing.T) {
	m := NewMediaCapture(StaticProbe{}, &fakeCamera{}, nil, newTestLogger())

	_, err := m.CaptureFrame(nil)

	assert.ErrorIs(t, err, ErrNoActiveStream)
}

func TestPickFile(t *testing.T) {
	m := NewMediaCapture(StaticProbe{}, nil, fakePicker{name: "photo.png", data: encodePNG(t)}, newTestLogger())

	media, err := m.PickFile(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "image/png", media.MIMEType)
	assert.Equal(t, 32, media.Width)
	assert.Equal(t, 24, media.Height)
}

func TestPickFile_RejectsNonImage(t *testing.T) {
	m := NewMediaCapture(StaticProbe{}, nil, fakePicker{name: "notes.txt", data: []byte("hello, world")}, newTestLogger())

	_, err := m.PickFile(context.Background())

	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestPickFile_Errors(t *testing.T) {
	m := NewMediaCapture(StaticProbe{}, nil, nil, newTestLogger())
	_, err := m.PickFile(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	cancelled := errors.New("selection cancelled")
	m = NewMediaCapture(StaticProbe{}, nil, fakePicker{err: cancelled}, newTestLogger())
	_, err = m.PickFile(context.Background())
	assert.ErrorIs(t, err, cancelled)
}

func TestAvailabilityString(t *testing.T) {
	assert.Equal(t, "available", Available.String())
	assert.Equal(t, "denied", Denied.String())
	assert.Equal(t, "availability(9)", Availability(9).String())
}
