//go:build windows

package ffmpeg

import (
	"errors"
	"os"
)

var errPauseUnsupported = errors.New("pausing the recorder is not supported on windows")

func suspendProcess(*os.Process) error { return errPauseUnsupported }
func resumeProcess(*os.Process) error  { return errPauseUnsupported }

// Windows has no SIGINT for child processes; the container is cut short.
func interruptProcess(p *os.Process) error { return p.Kill() }
