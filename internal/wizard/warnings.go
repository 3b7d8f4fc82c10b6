package wizard

import (
	"errors"

	"github.com/shenikar/civic_issue_reporter/internal/capture"
)

// Channel - источник предупреждения
type Channel string

const (
	ChannelLocation Channel = "location"
	ChannelCamera   Channel = "camera"
)

// Warning - некритичная ошибка канала, показывается рядом с шагом
type Warning struct {
	Channel Channel
	Err     error
}

// Message - текст для пользователя
func (w Warning) Message() string {
	switch {
	case errors.Is(w.Err, capture.ErrPermissionDenied):
		if w.Channel == ChannelCamera {
			return "Camera access was denied. Allow it and retry, or upload a photo instead."
		}
		return "Location access was denied. Allow it and retry."
	case errors.Is(w.Err, capture.ErrDeviceUnavailable):
		if w.Channel == ChannelCamera {
			return "Camera is not available on this device. Upload a photo instead."
		}
		return "Location is not available on this device."
	case errors.Is(w.Err, capture.ErrTimeout):
		return "Locating took too long. Retry when you have a better signal."
	}
	return w.Err.Error()
}

// Warnings возвращает текущие предупреждения
func (w *Wizard) Warnings() []Warning {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Warning(nil), w.warnings...)
}

func (w *Wizard) addWarningLocked(ch Channel, err error) {
	w.clearWarningLocked(ch)
	w.warnings = append(w.warnings, Warning{Channel: ch, Err: err})
	w.logger.WithError(err).WithField("channel", ch).Warn("Wizard channel failed")
}

func (w *Wizard) clearWarningLocked(ch Channel) {
	kept := w.warnings[:0]
	for _, wr := range w.warnings {
		if wr.Channel != ch {
			kept = append(kept, wr)
		}
	}
	w.warnings = kept
}
