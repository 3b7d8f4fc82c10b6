package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/sirupsen/logrus"
)

// JPEGQuality - качество кадра, достаточное для просмотра перед отправкой
const JPEGQuality = 92

// Facing - какую камеру просим у платформы
type Facing int

const (
	FacingAny Facing = iota
	FacingEnvironment
)

// StreamConstraints - параметры запроса видеопотока
type StreamConstraints struct {
	Facing Facing
	Audio  bool
}

// Stream - открытый видеопоток платформы
type Stream interface {
	// Frame возвращает текущий кадр в исходном разрешении
	Frame() (image.Image, error)
	Stop()
}

// Camera - платформенный доступ к камере
type Camera interface {
	Open(ctx context.Context, c StreamConstraints) (Stream, error)
}

// FilePicker - выбор файла пользователем (запасной путь без камеры)
type FilePicker interface {
	Pick(ctx context.Context) (name string, data []byte, err error)
}

// LiveVideoHandle - владение открытым потоком. Stop безопасно вызывать многократно.
type LiveVideoHandle struct {
	stream      Stream
	constraints StreamConstraints
	once        sync.Once
}

func (h *LiveVideoHandle) Constraints() StreamConstraints { return h.constraints }

// Stop останавливает поток ровно один раз
func (h *LiveVideoHandle) Stop() {
	h.once.Do(h.stream.Stop)
}

// MediaCapture владеет единственным активным потоком камеры
type MediaCapture struct {
	probe  Probe
	camera Camera
	picker FilePicker
	logger *logrus.Logger

	mu     sync.Mutex
	active *LiveVideoHandle
	// gen растет при каждом OpenStream и Release; поток от старого запроса не ставится
	gen uint64
}

func NewMediaCapture(probe Probe, camera Camera, picker FilePicker, logger *logrus.Logger) *MediaCapture {
	return &MediaCapture{
		probe:  probe,
		camera: camera,
		picker: picker,
		logger: logger,
	}
}

// порядок запросов: задняя камера со звуком, любая со звуком, любая без звука
var streamFallbacks = []StreamConstraints{
	{Facing: FacingEnvironment, Audio: true},
	{Facing: FacingAny, Audio: true},
	{Facing: FacingAny, Audio: false},
}

// OpenStream открывает поток камеры, предварительно останавливая предыдущий
func (m *MediaCapture) OpenStream(ctx context.Context) (*LiveVideoHandle, error) {
	log := m.logger.WithField("method", "OpenStream")

	switch m.probe.Camera() {
	case Unavailable:
		log.Warn("Camera API is not available on this platform")
		return nil, ErrCameraUnavailable
	case Denied:
		log.Warn("Camera permission denied")
		return nil, fmt.Errorf("camera: %w", ErrPermissionDenied)
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	prev := m.active
	m.active = nil
	m.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	var lastErr error
	for _, c := range streamFallbacks {
		stream, err := m.camera.Open(ctx, c)
		if err == nil {
			h := &LiveVideoHandle{stream: stream, constraints: c}
			m.mu.Lock()
			current := m.gen == gen && ctx.Err() == nil
			if current {
				m.active = h
			}
			m.mu.Unlock()
			if !current {
				h.Stop()
				log.Debug("Camera stream opened after release, stopped")
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, ErrStreamSuperseded
			}
			log.WithFields(logrus.Fields{
				"facing": c.Facing,
				"audio":  c.Audio,
			}).Debug("Camera stream opened")
			return h, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			log.WithError(err).Warn("Camera permission refused")
			return nil, fmt.Errorf("camera: %w", err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	log.WithError(lastErr).Warn("No camera stream could be opened")
	return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, lastErr)
}

// Release - единая точка освобождения камеры для всех путей выхода
func (m *MediaCapture) Release() {
	m.mu.Lock()
	m.gen++
	h := m.active
	m.active = nil
	m.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// Active возвращает текущий поток или nil
func (m *MediaCapture) Active() *LiveVideoHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// CaptureFrame сохраняет текущий кадр потока в JPEG
func (m *MediaCapture) CaptureFrame(h *LiveVideoHandle) (*models.CapturedMedia, error) {
	if h == nil {
		return nil, ErrNoActiveStream
	}
	frame, err := h.stream.Frame()
	if err != nil {
		return nil, fmt.Errorf("failed to grab frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	b := frame.Bounds()
	return &models.CapturedMedia{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// PickFile - запасной путь через выбор файла, принимаются только изображения
func (m *MediaCapture) PickFile(ctx context.Context) (*models.CapturedMedia, error) {
	log := m.logger.WithField("method", "PickFile")
	if m.picker == nil {
		return nil, fmt.Errorf("file picker: %w", ErrDeviceUnavailable)
	}

	name, data, err := m.picker.Pick(ctx)
	if err != nil {
		log.WithError(err).Warn("File selection failed")
		return nil, fmt.Errorf("file picker: %w", err)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		log.WithFields(logrus.Fields{
			"file": name,
			"mime": mtype.String(),
		}).Warn("Selected file is not an image")
		return nil, ErrUnsupportedMedia
	}

	media := &models.CapturedMedia{
		Data:     data,
		MIMEType: mtype.String(),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		media.Width, media.Height = cfg.Width, cfg.Height
	}
	return media, nil
}

// PathPicker "выбирает" заранее известный файл, используется в CLI
type PathPicker struct {
	Path string
}

func (p PathPicker) Pick(ctx context.Context) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(p.Path), data, nil
}
