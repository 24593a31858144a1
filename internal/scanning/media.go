package scanning

import (
	"encoding/base64"
	"log/slog"
	"strings"
)

const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeWebP = "image/webp"
)

// Media is an image ready to be sent inline to the inference service.
type Media struct {
	MIMEType string
	Data     string // standard base64
}

// MediaEncoder normalizes uploads into Media.
type MediaEncoder struct {
	convert bool
}

// NewMediaEncoder creates a MediaEncoder. When convert is true, HEIC/HEIF
// images and PDFs are rendered to PNG before encoding.
func NewMediaEncoder(convert bool) *MediaEncoder {
	return &MediaEncoder{convert: convert}
}

// Encode base64-encodes data and labels it with one of the accepted MIME types.
// Unknown or missing content types are labelled image/jpeg rather than rejected.
func (m *MediaEncoder) Encode(data []byte, contentType string) (Media, error) {
	if len(data) == 0 {
		return Media{}, ErrEmptyInput
	}

	if m != nil && m.convert && needsConversion(data, contentType) {
		pngData, err := convertToPNG(data, contentType)
		if err == nil {
			return Media{
				MIMEType: MIMETypePNG,
				Data:     base64.StdEncoding.EncodeToString(pngData),
			}, nil
		}
		slog.Warn("Media conversion failed, sending original bytes",
			"content_type", contentType,
			"size", len(data),
			"error", err,
		)
	}

	return Media{
		MIMEType: NormalizeMIMEType(contentType),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// NormalizeMIMEType maps a declared content type onto image/jpeg, image/png or image/webp.
func NormalizeMIMEType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch mimeType {
	case "image/png":
		return MIMETypePNG
	case "image/webp":
		return MIMETypeWebP
	default:
		// image/jpg, image/pjpeg, empty and anything unrecognized
		return MIMETypeJPEG
	}
}
