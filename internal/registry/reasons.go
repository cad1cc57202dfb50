// ABOUTME: Start request validation and rejection reason codes
// ABOUTME: Reason codes are sent to origins verbatim
package registry

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
)

// Rejection reasons
const (
	ReasonDuplicateStream   = "duplicate_stream"
	ReasonUnsupportedFormat = "unsupported_format"
	ReasonBadChannelCount   = "bad_channel_count"
	ReasonBadSampleRate     = "bad_sample_rate"
	ReasonBadStreamID       = "bad_stream_id"
	ReasonStreamLimit       = "stream_limit"
	ReasonEntityMismatch    = "entity_mismatch"
	ReasonNoEntity          = "no_entity"
)

// Reasons a stream ends
const (
	EndStopped          = "stopped"
	EndTimeout          = "timeout"
	EndOriginDisconnect = "origin_disconnect"
)

// RejectError is returned when a start request is refused
type RejectError struct {
	StreamID string
	Reason   string
	Detail   string
}

func (e *RejectError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("stream %q rejected: %s (%s)", e.StreamID, e.Reason, e.Detail)
	}
	return fmt.Sprintf("stream %q rejected: %s", e.StreamID, e.Reason)
}

// ReasonOf returns the rejection reason of err, or "" if err is not a rejection
func ReasonOf(err error) string {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

// startRequest mirrors protocol.StreamStart with validation tags
type startRequest struct {
	StreamID   string             `validate:"max=255,streamid"`
	SampleRate int                `validate:"min=8000,max=48000"`
	Channels   int                `validate:"oneof=1 2"`
	Format     audio.SampleFormat `validate:"sampleformat"`
}

// fieldReasons maps a failed field to its reason code
var fieldReasons = map[string]string{
	"StreamID":   ReasonBadStreamID,
	"SampleRate": ReasonBadSampleRate,
	"Channels":   ReasonBadChannelCount,
	"Format":     ReasonUnsupportedFormat,
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("sampleformat", func(fl validator.FieldLevel) bool {
		return audio.SampleFormat(fl.Field().String()).Valid()
	})
	v.RegisterValidation("streamid", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if !unicode.IsPrint(r) || unicode.IsSpace(r) {
				return false
			}
		}
		return true
	})
	return v
}

// validateStart checks the stream parameters of a start request
func validateStart(v *validator.Validate, req protocol.StreamStart) *RejectError {
	err := v.Struct(startRequest{
		StreamID:   req.StreamID,
		SampleRate: req.SampleRate,
		Channels:   req.Channels,
		Format:     req.Format,
	})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		// Report the first failure in field order
		for _, field := range []string{"StreamID", "Format", "Channels", "SampleRate"} {
			for _, fe := range verrs {
				if fe.Field() == field {
					return &RejectError{
						StreamID: req.StreamID,
						Reason:   fieldReasons[field],
						Detail:   fmt.Sprintf("%s=%v", fe.Field(), fe.Value()),
					}
				}
			}
		}
	}

	return &RejectError{StreamID: req.StreamID, Reason: ReasonUnsupportedFormat, Detail: err.Error()}
}
