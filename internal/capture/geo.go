package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/sirupsen/logrus"
)

const DefaultGeoTimeout = 10 * time.Second

// Locator - платформенный источник координат
type Locator interface {
	CurrentPosition(ctx context.Context) (models.GeoPosition, error)
}

// GeoCapture запрашивает текущее местоположение с ограничением по времени
type GeoCapture struct {
	probe   Probe
	locator Locator
	timeout time.Duration
	logger  *logrus.Logger
}

func NewGeoCapture(probe Probe, locator Locator, timeout time.Duration, logger *logrus.Logger) *GeoCapture {
	if timeout <= 0 {
		timeout = DefaultGeoTimeout
	}
	return &GeoCapture{
		probe:   probe,
		locator: locator,
		timeout: timeout,
		logger:  logger,
	}
}

// RequestPosition возвращает текущую позицию. Повторных попыток нет, решает вызывающий.
func (g *GeoCapture) RequestPosition(ctx context.Context) (models.GeoPosition, error) {
	log := g.logger.WithField("method", "RequestPosition")

	switch g.probe.Geolocation() {
	case Unavailable:
		log.Warn("Geolocation is not available on this platform")
		return models.GeoPosition{}, ErrLocationUnavailable
	case Denied:
		log.Warn("Geolocation permission denied")
		return models.GeoPosition{}, fmt.Errorf("location: %w", ErrPermissionDenied)
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pos, err := g.locator.CurrentPosition(reqCtx)
	if err != nil {
		// Таймаут именно нашего ожидания, а не отмена снаружи
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			log.WithField("timeout", g.timeout).Warn("Geolocation timed out")
			return models.GeoPosition{}, fmt.Errorf("location: %w", ErrTimeout)
		}
		log.WithError(err).Warn("Failed to get current position")
		return models.GeoPosition{}, fmt.Errorf("location: %w", err)
	}

	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now()
	}
	log.WithFields(logrus.Fields{
		"lat": pos.Latitude,
		"lng": pos.Longitude,
	}).Debug("Position resolved")
	return pos, nil
}

// StaticLocator всегда возвращает заданную точку
type StaticLocator struct {
	Position models.GeoPosition
}

func (l StaticLocator) CurrentPosition(ctx context.Context) (models.GeoPosition, error) {
	if err := ctx.Err(); err != nil {
		return models.GeoPosition{}, err
	}
	return l.Position, nil
}

// ExifLocator берет координаты из GPS-тегов фотографии
type ExifLocator struct {
	Photo func() []byte
}

func (l ExifLocator) CurrentPosition(ctx context.Context) (models.GeoPosition, error) {
	if err := ctx.Err(); err != nil {
		return models.GeoPosition{}, err
	}
	data := l.Photo()
	if len(data) == 0 {
		return models.GeoPosition{}, ErrLocationUnavailable
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return models.GeoPosition{}, fmt.Errorf("photo has no exif: %w", ErrLocationUnavailable)
	}
	lat, lng, err := x.LatLong()
	if err != nil {
		return models.GeoPosition{}, fmt.Errorf("photo has no gps tags: %w", ErrLocationUnavailable)
	}

	pos := models.GeoPosition{Latitude: lat, Longitude: lng}
	if ts, err := x.DateTime(); err == nil {
		pos.Timestamp = ts
	}
	return pos, nil
}
