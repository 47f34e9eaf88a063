package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
)

var ErrMicrophoneDenied = errors.New("microphone access denied")

// PermissionError reports why microphone access was refused
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	if e.Reason == "" {
		return ErrMicrophoneDenied.Error()
	}
	return fmt.Sprintf("%s: %s", ErrMicrophoneDenied, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrMicrophoneDenied
}

// Microphone grants or refuses audio capture before a meeting starts
type Microphone interface {
	Request(ctx context.Context) error
}

// DeviceMicrophone checks that a capture device exists. OSCAR_MIC_DENY
// forces a refusal.
type DeviceMicrophone struct {
	// Path of the sound device directory checked on Linux
	Path string
}

func (m DeviceMicrophone) Request(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deny, err := strconv.ParseBool(os.Getenv("OSCAR_MIC_DENY")); err == nil && deny {
		return &PermissionError{Reason: "blocked by OSCAR_MIC_DENY"}
	}
	if runtime.GOOS != "linux" {
		return nil
	}

	path := m.Path
	if path == "" {
		path = "/dev/snd"
	}
	if _, err := os.Stat(path); err != nil {
		return &PermissionError{Reason: fmt.Sprintf("no capture device at %s", path)}
	}
	return nil
}

// AllowMicrophone always grants access
type AllowMicrophone struct{}

func (AllowMicrophone) Request(context.Context) error { return nil }

// DenyMicrophone always refuses access
type DenyMicrophone struct{}

func (DenyMicrophone) Request(context.Context) error {
	return &PermissionError{Reason: "denied by configuration"}
}

// MicrophoneFor maps the voice.microphone setting to an implementation
func MicrophoneFor(setting string) Microphone {
	switch setting {
	case "allow":
		return AllowMicrophone{}
	case "deny":
		return DenyMicrophone{}
	default:
		return DeviceMicrophone{}
	}
}
