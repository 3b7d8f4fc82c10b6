package models

import (
	"encoding/base64"
	"time"
)

// GeoPosition - результат определения местоположения устройства
type GeoPosition struct {
	Latitude  float64
	Longitude float64
	// Accuracy в метрах, 0 если неизвестна
	Accuracy  float64
	Timestamp time.Time
}

// Point переводит позицию в формат внешнего API
func (p GeoPosition) Point() GeoPoint {
	return GeoPoint{Lat: p.Latitude, Lng: p.Longitude}
}

// CapturedMedia - снимок (или выбранный файл) в памяти
type CapturedMedia struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	// GeoTag заполняется после успешной записи EXIF GPS
	GeoTag *GeoPosition
}

// DataURL кодирует содержимое в data URL, как его ожидает photoBase64
func (m *CapturedMedia) DataURL() string {
	if m == nil || len(m.Data) == 0 {
		return ""
	}
	return "data:" + m.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(m.Data)
}
