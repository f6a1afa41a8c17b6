package mic_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/voxlink/voxlink/internal/errmgr"
	"github.com/voxlink/voxlink/internal/mic"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want errmgr.Type
	}{
		{mic.ErrNotAllowed, errmgr.TypePermissionDenied},
		{mic.ErrNotFound, errmgr.TypeMicrophone},
		{mic.ErrNotReadable, errmgr.TypeMicrophone},
		{mic.ErrOverconstrained, errmgr.TypeAudioContext},
		{errors.New("alsa: cannot open device"), errmgr.TypeMicrophone},
	}
	for _, c := range cases {
		got := mic.Classify(c.err)
		if got.Type != c.want {
			t.Errorf("Classify(%v).Type = %s, want %s", c.err, got.Type, c.want)
		}
		if got.Type.Retryable() {
			t.Errorf("capture failure %v classified as retry-eligible %s", c.err, got.Type)
		}
	}
}

func TestClassify_WrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("open capture stream: %w", mic.ErrNotAllowed)
	if got := mic.Classify(wrapped); got.Type != errmgr.TypePermissionDenied {
		t.Errorf("wrapped sentinel classified as %s, want permission_denied", got.Type)
	}
}

func TestGuidanceFor_AlwaysActionable(t *testing.T) {
	for _, err := range []error{
		mic.ErrNotAllowed, mic.ErrNotFound, mic.ErrNotReadable,
		mic.ErrOverconstrained, errors.New("unknown"),
	} {
		if steps := mic.GuidanceFor(err); len(steps) == 0 {
			t.Errorf("no guidance for %v", err)
		}
	}
}
