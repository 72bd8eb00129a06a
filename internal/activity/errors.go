package activity

import (
	"context"
	"errors"
	"fmt"
)

// Probe error sources
const (
	SourceMediaPlayer = "media_player"
	SourceLighting    = "lighting"
)

// ProbeError is a failed media player or light group call during a tick.
// It is recoverable: the tick is abandoned and the state is left unchanged.
type ProbeError struct {
	Source string // SourceMediaPlayer or SourceLighting
	Op     string // is_active, is_on, set_on
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call was cut off by its deadline.
func (e *ProbeError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
