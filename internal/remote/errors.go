package remote

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a remote-service refusal into the categories the job
// engine reacts to.
type Kind int

const (
	KindUnknown Kind = iota
	KindAlreadyMember
	KindPrivate
	KindFloodWait
	KindTooManyChannels
	KindNotFound
)

// Error is a classified remote-service failure. Message preserves the
// service's text verbatim for diagnosis.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Wait    time.Duration // populated for KindFloodWait
}

func (e *Error) Error() string {
	if e.Message != "" && e.Message != e.Code {
		return fmt.Sprintf("remote: %s: %s", e.Code, e.Message)
	}
	return "remote: " + e.Code
}

// AsError extracts a classified remote error from an error chain.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsKind reports whether err is a remote error of the given kind.
func IsKind(err error, kind Kind) bool {
	re, ok := AsError(err)
	return ok && re.Kind == kind
}

// classify maps a service error code to a typed error. Flood waits carry
// the demanded delay either as a FLOOD_WAIT_<seconds> suffix or an
// explicit retry-after value in milliseconds.
func classify(code, message string, retryAfterMs int) *Error {
	e := &Error{Kind: KindUnknown, Code: code, Message: message}

	switch code {
	case "USER_ALREADY_PARTICIPANT":
		e.Kind = KindAlreadyMember
	case "CHANNEL_PRIVATE", "CHAT_ADMIN_REQUIRED", "INVITE_REQUEST_SENT":
		e.Kind = KindPrivate
	case "CHANNELS_TOO_MUCH":
		e.Kind = KindTooManyChannels
	case "USERNAME_NOT_FOUND", "USERNAME_INVALID", "INVITE_HASH_INVALID",
		"INVITE_HASH_EXPIRED", "PEER_ID_INVALID":
		e.Kind = KindNotFound
	default:
		if strings.HasPrefix(code, "FLOOD_WAIT") {
			e.Kind = KindFloodWait
			if secs, err := strconv.Atoi(strings.TrimPrefix(code, "FLOOD_WAIT_")); err == nil {
				e.Wait = time.Duration(secs) * time.Second
			}
		}
	}

	if e.Kind == KindFloodWait && e.Wait == 0 && retryAfterMs > 0 {
		e.Wait = time.Duration(retryAfterMs) * time.Millisecond
	}
	return e
}
