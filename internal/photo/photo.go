// Package photo разбирает фотографии, присланные в base64, и сохраняет их.
package photo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shenikar/civic_issue_reporter/internal/geotag"
	"github.com/shenikar/civic_issue_reporter/internal/models"
)

var (
	ErrEmpty       = errors.New("photo: empty payload")
	ErrBadEncoding = errors.New("photo: payload is not valid base64")
	ErrUnsupported = errors.New("photo: unsupported media type")
)

// Photo - декодированное медиа с определенным по содержимому типом
type Photo struct {
	Data      []byte
	MIMEType  string
	Extension string
}

// Decode принимает data URL ("data:image/jpeg;base64,...") или голый base64.
// Заявленный в data URL тип не учитывается, тип определяется по байтам.
func Decode(payload string) (*Photo, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.Contains(payload[:comma], ";base64") {
			return nil, ErrBadEncoding
		}
		payload = payload[comma+1:]
	}
	if payload == "" {
		return nil, ErrEmpty
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") && !strings.HasPrefix(mt.String(), "video/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mt.String())
	}
	return &Photo{
		Data:      data,
		MIMEType:  mt.String(),
		Extension: mt.Extension(),
	}, nil
}

func (p *Photo) IsVideo() bool {
	return strings.HasPrefix(p.MIMEType, "video/")
}

func (p *Photo) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// GeoTag читает GPS из EXIF. Для не-JPEG и фото без тега ok == false.
func (p *Photo) GeoTag() (models.GeoPoint, bool) {
	if p.MIMEType != "image/jpeg" {
		return models.GeoPoint{}, false
	}
	pos, err := geotag.Decode(p.Data)
	if err != nil {
		return models.GeoPoint{}, false
	}
	return pos.Point(), true
}

// Store сохраняет медиа и возвращает URL, который попадет в ответ API
type Store interface {
	Save(ctx context.Context, name string, p *Photo) (string, error)
}

// DataURLStore ничего не выгружает: URL - это само содержимое
type DataURLStore struct{}

func (DataURLStore) Save(_ context.Context, _ string, p *Photo) (string, error) {
	return p.DataURL(), nil
}
