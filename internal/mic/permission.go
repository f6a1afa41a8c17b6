// Package mic classifies microphone-capture failures into the error taxonomy
// and provides the per-cause recovery guidance shown to the user. The failure
// classes mirror the browser media-capture error names so that guidance stays
// consistent across client surfaces.
package mic

import (
	"errors"

	"github.com/voxlink/voxlink/internal/errmgr"
)

// Capture failure classes. Capture sources wrap their platform errors in one
// of these sentinels so Classify can route them.
var (
	// ErrNotAllowed: the user or a policy denied microphone access.
	ErrNotAllowed = errors.New("mic: permission denied")

	// ErrNotFound: no capture device is present.
	ErrNotFound = errors.New("mic: no microphone found")

	// ErrNotReadable: the device exists but another process holds it.
	ErrNotReadable = errors.New("mic: device busy")

	// ErrOverconstrained: the device cannot satisfy the requested format.
	ErrOverconstrained = errors.New("mic: unsupported audio format")
)

// Classify maps a capture failure to a classified AppError carrying
// actionable guidance. Permission and device errors are deliberately outside
// the retry-eligible set: the user has to act before another attempt can
// succeed.
func Classify(err error) *errmgr.AppError {
	switch {
	case errors.Is(err, ErrNotAllowed):
		return errmgr.New(errmgr.TypePermissionDenied, "microphone permission denied", errmgr.SeverityHigh,
			map[string]any{"guidance": GuidanceFor(err)})
	case errors.Is(err, ErrNotFound):
		return errmgr.New(errmgr.TypeMicrophone, "no microphone device found", errmgr.SeverityHigh,
			map[string]any{"guidance": GuidanceFor(err)})
	case errors.Is(err, ErrNotReadable):
		return errmgr.New(errmgr.TypeMicrophone, "microphone is in use by another application", errmgr.SeverityHigh,
			map[string]any{"guidance": GuidanceFor(err)})
	case errors.Is(err, ErrOverconstrained):
		return errmgr.New(errmgr.TypeAudioContext, "microphone does not support the required audio format", errmgr.SeverityHigh,
			map[string]any{"guidance": GuidanceFor(err)})
	default:
		return errmgr.Wrap(errmgr.TypeMicrophone, err, errmgr.SeverityHigh)
	}
}

// GuidanceFor returns the self-service recovery steps for a capture failure.
func GuidanceFor(err error) []string {
	switch {
	case errors.Is(err, ErrNotAllowed):
		return []string{
			"Click the lock icon in the address bar and allow microphone access",
			"Reload the page after changing the permission",
			"Check the operating system's microphone privacy settings",
		}
	case errors.Is(err, ErrNotFound):
		return []string{
			"Check that a microphone is connected",
			"Confirm the device drivers are installed",
			"Unplug and reconnect the microphone",
		}
	case errors.Is(err, ErrNotReadable):
		return []string{
			"Close other applications that may be using the microphone",
			"Restart the browser and try again",
			"Check the system audio settings",
		}
	case errors.Is(err, ErrOverconstrained):
		return []string{
			"The microphone may not support 16kHz mono capture",
			"Try a different microphone device",
		}
	default:
		return []string{"Check the microphone connection and try again"}
	}
}
