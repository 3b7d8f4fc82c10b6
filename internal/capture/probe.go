// Package capture оборачивает платформенные возможности устройства:
// определение местоположения, камеру и выбор файла.
package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable - на платформе нет нужного API
	ErrDeviceUnavailable = errors.New("device capability unavailable")
	// ErrPermissionDenied - пользователь отказал в доступе
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTimeout - устройство не ответило за отведенное время
	ErrTimeout = errors.New("device did not respond in time")

	ErrLocationUnavailable = fmt.Errorf("location: %w", ErrDeviceUnavailable)
	ErrCameraUnavailable   = fmt.Errorf("camera: %w", ErrDeviceUnavailable)
	ErrUnsupportedMedia    = errors.New("selected file is not an image")
	ErrNoActiveStream      = errors.New("no active camera stream")
	// ErrStreamSuperseded - поток открылся, когда камеру уже освободили или запросили заново
	ErrStreamSuperseded = errors.New("camera stream superseded")
)

// Availability - результат проверки возможности платформы
type Availability int

const (
	Available Availability = iota
	Unavailable
	Denied
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	case Denied:
		return "denied"
	}
	return fmt.Sprintf("availability(%d)", int(a))
}

// Probe сообщает, какие возможности есть у платформы
type Probe interface {
	Geolocation() Availability
	Camera() Availability
}

// StaticProbe - Probe с заранее известными ответами
type StaticProbe struct {
	GeolocationAvailability Availability
	CameraAvailability      Availability
}

func (p StaticProbe) Geolocation() Availability { return p.GeolocationAvailability }
func (p StaticProbe) Camera() Availability      { return p.CameraAvailability }
