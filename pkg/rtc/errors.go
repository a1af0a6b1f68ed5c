package rtc

import "fmt"

// MediaError wraps a failed camera/microphone acquisition. Recoverable:
// the caller may retry once the user grants access or plugs a device.
type MediaError struct {
	cause error
}

func (e *MediaError) Error() string { return fmt.Sprintf("media access: %v", e.cause) }
func (e *MediaError) Unwrap() error { return e.cause }

// ScreenError wraps a failed display capture.
type ScreenError struct {
	cause error
}

func (e *ScreenError) Error() string { return fmt.Sprintf("screen share: %v", e.cause) }
func (e *ScreenError) Unwrap() error { return e.cause }
