package websocket

import (
	"strings"

	"github.com/yanun0323/errors"

	"github.com/yanun0323/eventsocket/pkg/exception"
)

const (
	maxChannelSegments   = 5
	maxChannelSegmentLen = 50
)

// ValidateChannel checks a channel path such as "/default/room-1". Each of
// the 1 to 5 segments holds 1 to 50 letters, digits or dashes. With
// allowWildcard the last segment may be "*".
func ValidateChannel(channel string, allowWildcard bool) error {
	if !strings.HasPrefix(channel, "/") {
		return errors.Wrap(exception.ErrInvalidChannel, "channel must start with '/'").With("channel", channel)
	}
	segments := strings.Split(channel[1:], "/")
	if len(segments) > maxChannelSegments {
		return errors.Wrap(exception.ErrInvalidChannel, "too many segments").With("channel", channel)
	}
	for i, seg := range segments {
		if seg == "*" && allowWildcard && i == len(segments)-1 {
			continue
		}
		if !validSegment(seg) {
			return errors.Wrap(exception.ErrInvalidChannel, "invalid segment").With("channel", channel).With("segment", seg)
		}
	}
	return nil
}

func validSegment(seg string) bool {
	if len(seg) == 0 || len(seg) > maxChannelSegmentLen {
		return false
	}
	for i := 0; i < len(seg); i++ {
		b := seg[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == '-':
		default:
			return false
		}
	}
	return true
}
