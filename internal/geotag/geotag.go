// Package geotag записывает координаты съемки в EXIF (GPS IFD) JPEG-изображения
// и читает их обратно.
package geotag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/sirupsen/logrus"
)

// SecondsScale - знаменатель рационального значения секунд
const SecondsScale = 100

var (
	ErrNotJPEG         = errors.New("image is not a JPEG")
	ErrMalformedJPEG   = errors.New("malformed JPEG segment structure")
	ErrInvalidPosition = errors.New("coordinates out of range")
	ErrNoGeoTag        = errors.New("image has no GPS tags")
)

const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerSOS    = 0xDA
	markerEOI    = 0xD9
	markerAPP0   = 0xE0
	markerAPP1   = 0xE1
)

var exifHeader = []byte("Exif\x00\x00")

// Rational - беззнаковая дробь TIFF RATIONAL
type Rational struct {
	Num, Den uint32
}

func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// DMS - координата в градусах, минутах и секундах
type DMS struct {
	Degrees Rational
	Minutes Rational
	Seconds Rational
}

// Decimal возвращает абсолютное значение координаты в десятичных градусах
func (d DMS) Decimal() float64 {
	return d.Degrees.Float() + d.Minutes.Float()/60 + d.Seconds.Float()/3600
}

// ToDMS переводит десятичные градусы в DMS, знак отбрасывается (он уходит в Ref)
func ToDMS(decimal float64) DMS {
	abs := math.Abs(decimal)
	deg := math.Floor(abs)
	minFloat := (abs - deg) * 60
	minutes := math.Floor(minFloat)
	sec := math.Round((minFloat - minutes) * 60 * SecondsScale)

	// округление может дать 60" или 60'
	if sec >= 60*SecondsScale {
		sec -= 60 * SecondsScale
		minutes++
	}
	if minutes >= 60 {
		minutes -= 60
		deg++
	}

	return DMS{
		Degrees: Rational{Num: uint32(deg), Den: 1},
		Minutes: Rational{Num: uint32(minutes), Den: 1},
		Seconds: Rational{Num: uint32(sec), Den: SecondsScale},
	}
}

// LatitudeRef возвращает N или S
func LatitudeRef(lat float64) string {
	if lat < 0 {
		return "S"
	}
	return "N"
}

// LongitudeRef возвращает E или W
func LongitudeRef(lng float64) string {
	if lng < 0 {
		return "W"
	}
	return "E"
}

// Geotagger встраивает GPS-теги в снимки
type Geotagger struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Geotagger {
	return &Geotagger{logger: logger}
}

// Embed возвращает копию снимка с координатами в EXIF. Работает по принципу best-effort:
// при любой ошибке возвращается исходный снимок без изменений.
func (g *Geotagger) Embed(media *models.CapturedMedia, pos models.GeoPosition) *models.CapturedMedia {
	if media == nil {
		return nil
	}

	tagged, err := EmbedJPEG(media.Data, pos)
	if err != nil {
		g.logger.WithError(err).WithField("mime", media.MIMEType).Debug("Geotag not embedded, using original image")
		return media
	}

	p := pos
	out := *media
	out.Data = tagged
	out.GeoTag = &p
	return &out
}

// EmbedJPEG вставляет APP1 Exif с GPS IFD сразу после SOI (или APP0 JFIF).
// Существующий Exif-сегмент заменяется, теги IFD0 (Orientation, DateTime и т.п.)
// и Exif IFD переносятся в новый.
func EmbedJPEG(data []byte, pos models.GeoPosition) ([]byte, error) {
	if math.IsNaN(pos.Latitude) || math.IsNaN(pos.Longitude) ||
		math.Abs(pos.Latitude) > 90 || math.Abs(pos.Longitude) > 180 {
		return nil, ErrInvalidPosition
	}
	if len(data) < 4 || data[0] != markerPrefix || data[1] != markerSOI {
		return nil, ErrNotJPEG
	}

	segments, rest, err := splitSegments(data[2:])
	if err != nil {
		return nil, err
	}

	var kept keptTags
	for _, seg := range segments {
		if seg[1] == markerAPP1 && bytes.HasPrefix(seg[4:], exifHeader) {
			kept = readKeptTags(seg[4+len(exifHeader):])
			break
		}
	}
	app1 := buildAPP1(pos, kept)

	var out bytes.Buffer
	out.Grow(len(data) + len(app1))
	out.Write([]byte{markerPrefix, markerSOI})

	inserted := false
	for _, seg := range segments {
		marker := seg[1]
		if marker == markerAPP1 && bytes.HasPrefix(seg[4:], exifHeader) {
			continue
		}
		if !inserted && marker != markerAPP0 {
			out.Write(app1)
			inserted = true
		}
		out.Write(seg)
	}
	if !inserted {
		out.Write(app1)
	}
	out.Write(rest)
	return out.Bytes(), nil
}

// splitSegments режет заголовочные сегменты до SOS; rest - SOS и сжатые данные
func splitSegments(b []byte) ([][]byte, []byte, error) {
	var segments [][]byte
	i := 0
	for {
		if i+2 > len(b) {
			return nil, nil, ErrMalformedJPEG
		}
		if b[i] != markerPrefix {
			return nil, nil, fmt.Errorf("%w: expected marker at offset %d", ErrMalformedJPEG, i+2)
		}
		marker := b[i+1]
		switch {
		case marker == markerPrefix:
			// заполняющий байт
			i++
			continue
		case marker == markerSOS:
			return segments, b[i:], nil
		case marker == markerEOI || marker == markerSOI || (marker >= 0xD0 && marker <= 0xD7):
			return nil, nil, fmt.Errorf("%w: unexpected marker 0x%X before scan", ErrMalformedJPEG, marker)
		}
		if i+4 > len(b) {
			return nil, nil, ErrMalformedJPEG
		}
		length := int(binary.BigEndian.Uint16(b[i+2 : i+4]))
		if length < 2 || i+2+length > len(b) {
			return nil, nil, fmt.Errorf("%w: segment 0x%X length %d", ErrMalformedJPEG, marker, length)
		}
		segments = append(segments, b[i:i+2+length])
		i += 2 + length
	}
}

// типы и теги TIFF
const (
	tiffByte     = 1
	tiffASCII    = 2
	tiffLong     = 4
	tiffRational = 5

	tagGPSInfoIFD   = 0x8825
	tagGPSVersionID = 0x0000
	tagGPSLatRef    = 0x0001
	tagGPSLat       = 0x0002
	tagGPSLngRef    = 0x0003
	tagGPSLng       = 0x0004
	tagExifIFD      = 0x8769
	tagInteropIFD   = 0xA005
)

// не переносим: указатели на IFD и данные, которые ссылаются на смещения исходного файла
var droppedTags = map[uint16]bool{
	tagGPSInfoIFD: true,
	tagExifIFD:    true,
	tagInteropIFD: true,
	0x0111:        true, // StripOffsets
	0x0117:        true, // StripByteCounts
	0x014A:        true, // SubIFDs
	0x0201:        true, // JPEGInterchangeFormat
	0x0202:        true, // JPEGInterchangeFormatLength
	0x927C:        true, // MakerNote
}

// размер одного элемента по типу TIFF; RATIONAL - два LONG
var elemSize = map[tiff.DataType]int{
	tiff.DTByte: 1, tiff.DTAscii: 1, tiff.DTShort: 2, tiff.DTLong: 4,
	tiff.DTRational: 4, tiff.DTSByte: 1, tiff.DTUndefined: 1, tiff.DTSShort: 2,
	tiff.DTSLong: 4, tiff.DTSRational: 4, tiff.DTFloat: 4, tiff.DTDouble: 8,
}

// field - запись IFD, значение уже в little-endian
type field struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// keptTags - теги исходного Exif, которые переживают перезапись
type keptTags struct {
	ifd0 []field
	exif []field
}

// readKeptTags читает IFD0 и Exif IFD исходного сегмента. Ошибки разбора не фатальны:
// в худшем случае старые теги просто не переносятся.
func readKeptTags(raw []byte) keptTags {
	var kept keptTags
	t, err := tiff.Decode(bytes.NewReader(raw))
	if err != nil || len(t.Dirs) == 0 {
		return kept
	}

	var exifOffset int64 = -1
	for _, tag := range t.Dirs[0].Tags {
		if tag.Id == tagExifIFD && len(tag.Val) == 4 {
			exifOffset = int64(t.Order.Uint32(tag.Val))
		}
		if f, ok := toField(tag, t.Order); ok {
			kept.ifd0 = append(kept.ifd0, f)
		}
	}

	if exifOffset > 0 {
		r := bytes.NewReader(raw)
		if _, err := r.Seek(exifOffset, io.SeekStart); err == nil {
			if dir, _, err := tiff.DecodeDir(r, t.Order); err == nil {
				for _, tag := range dir.Tags {
					if f, ok := toField(tag, t.Order); ok {
						kept.exif = append(kept.exif, f)
					}
				}
			}
		}
	}
	return kept
}

func toField(tag *tiff.Tag, order binary.ByteOrder) (field, bool) {
	if droppedTags[tag.Id] {
		return field{}, false
	}
	size, ok := elemSize[tag.Type]
	if !ok {
		return field{}, false
	}
	want := int(tag.Count) * size
	if tag.Type == tiff.DTRational || tag.Type == tiff.DTSRational {
		want *= 2
	}
	if len(tag.Val) != want {
		return field{}, false
	}

	data := append([]byte(nil), tag.Val...)
	if order == binary.BigEndian && size > 1 {
		for i := 0; i+size <= len(data); i += size {
			elem := data[i : i+size]
			for a, b := 0, size-1; a < b; a, b = a+1, b-1 {
				elem[a], elem[b] = elem[b], elem[a]
			}
		}
	}
	return field{tag: tag.Id, typ: uint16(tag.Type), count: tag.Count, data: data}, true
}

func ifdSize(n int) int { return 2 + 12*n + 4 }

// buildAPP1 собирает сегмент APP1: little-endian TIFF, IFD0 с перенесенными тегами и
// указателями на Exif IFD (если он есть) и GPS IFD, затем область данных
func buildAPP1(pos models.GeoPosition, kept keptTags) []byte {
	le := binary.LittleEndian

	gps := []field{
		{tag: tagGPSVersionID, typ: tiffByte, count: 4, data: []byte{2, 3, 0, 0}},
		{tag: tagGPSLatRef, typ: tiffASCII, count: 2, data: []byte{LatitudeRef(pos.Latitude)[0], 0}},
		{tag: tagGPSLat, typ: tiffRational, count: 3, data: appendDMS(nil, ToDMS(pos.Latitude))},
		{tag: tagGPSLngRef, typ: tiffASCII, count: 2, data: []byte{LongitudeRef(pos.Longitude)[0], 0}},
		{tag: tagGPSLng, typ: tiffRational, count: 3, data: appendDMS(nil, ToDMS(pos.Longitude))},
	}

	ifd0 := append([]field(nil), kept.ifd0...)
	n0 := len(ifd0) + 1
	if len(kept.exif) > 0 {
		n0++
	}
	ifd0Offset := 8
	exifOffset := ifd0Offset + ifdSize(n0)
	gpsOffset := exifOffset
	if len(kept.exif) > 0 {
		gpsOffset += ifdSize(len(kept.exif))
	}
	dataOffset := gpsOffset + ifdSize(len(gps))

	ifd0 = append(ifd0, field{tag: tagGPSInfoIFD, typ: tiffLong, count: 1, data: le.AppendUint32(nil, uint32(gpsOffset))})
	if len(kept.exif) > 0 {
		ifd0 = append(ifd0, field{tag: tagExifIFD, typ: tiffLong, count: 1, data: le.AppendUint32(nil, uint32(exifOffset))})
	}

	tiffData := make([]byte, 0, dataOffset+64)
	tiffData = append(tiffData, 'I', 'I')
	tiffData = le.AppendUint16(tiffData, 42)
	tiffData = le.AppendUint32(tiffData, uint32(ifd0Offset))

	var area []byte
	dirs := [][]field{ifd0}
	if len(kept.exif) > 0 {
		dirs = append(dirs, kept.exif)
	}
	dirs = append(dirs, gps)
	for _, dir := range dirs {
		tiffData, area = appendIFD(tiffData, dir, dataOffset, area)
	}
	tiffData = append(tiffData, area...)

	payloadLen := len(exifHeader) + len(tiffData)
	seg := make([]byte, 0, 4+payloadLen)
	seg = append(seg, markerPrefix, markerAPP1)
	seg = binary.BigEndian.AppendUint16(seg, uint16(2+payloadLen))
	seg = append(seg, exifHeader...)
	seg = append(seg, tiffData...)
	return seg
}

// appendIFD пишет IFD с записями по возрастанию тега; значения длиннее 4 байт
// уходят в area, которая начнется со смещения dataOffset
func appendIFD(b []byte, entries []field, dataOffset int, area []byte) ([]byte, []byte) {
	le := binary.LittleEndian
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	b = le.AppendUint16(b, uint16(len(entries)))
	for _, e := range entries {
		b = le.AppendUint16(b, e.tag)
		b = le.AppendUint16(b, e.typ)
		b = le.AppendUint32(b, e.count)
		if len(e.data) <= 4 {
			var v [4]byte
			copy(v[:], e.data)
			b = append(b, v[:]...)
			continue
		}
		// смещения значений выравниваются по слову
		if len(area)%2 == 1 {
			area = append(area, 0)
		}
		b = le.AppendUint32(b, uint32(dataOffset+len(area)))
		area = append(area, e.data...)
	}
	// следующего IFD нет
	return le.AppendUint32(b, 0), area
}

func appendDMS(b []byte, d DMS) []byte {
	le := binary.LittleEndian
	for _, r := range []Rational{d.Degrees, d.Minutes, d.Seconds} {
		b = le.AppendUint32(b, r.Num)
		b = le.AppendUint32(b, r.Den)
	}
	return b
}

// Decode читает GPS-координаты из EXIF изображения
func Decode(data []byte) (models.GeoPosition, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return models.GeoPosition{}, fmt.Errorf("%w: %v", ErrNoGeoTag, err)
	}
	lat, lng, err := x.LatLong()
	if err != nil {
		return models.GeoPosition{}, fmt.Errorf("%w: %v", ErrNoGeoTag, err)
	}
	return models.GeoPosition{Latitude: lat, Longitude: lng}, nil
}
