package engine

import (
	"runtime"
	"strings"

	"landscapesim/pkg/batch/util/exception"
)

// Platform is the host-dependent part of running the console. It is derived
// once when the adapter is built.
type Platform struct {
	// LauncherPrefix is prepended to every invocation, e.g. ["mono"] when
	// the console is a .NET binary run on a POSIX host.
	LauncherPrefix []string
	// LineSep splits console stdout into lines.
	LineSep string
}

// DetectPlatform resolves mode ("auto", "native" or "posix") against the
// current host.
func DetectPlatform(mode, launcher string) (Platform, error) {
	switch strings.ToLower(mode) {
	case "", "auto":
		if runtime.GOOS == "windows" {
			return NativePlatform(), nil
		}
		return PosixPlatform(launcher), nil
	case "native":
		return NativePlatform(), nil
	case "posix":
		return PosixPlatform(launcher), nil
	default:
		return Platform{}, exception.Newf(exception.KindConfiguration, "engine", "unknown platform %q", mode)
	}
}

// NativePlatform runs the console directly with CRLF output.
func NativePlatform() Platform {
	return Platform{LineSep: "\r\n"}
}

// PosixPlatform runs the console through launcher. An empty launcher runs it
// directly.
func PosixPlatform(launcher string) Platform {
	p := Platform{LineSep: "\n"}
	if fields := strings.Fields(launcher); len(fields) > 0 {
		p.LauncherPrefix = fields
	}
	return p
}

func (p Platform) command(executable string, args []string) (string, []string) {
	if len(p.LauncherPrefix) == 0 {
		return executable, args
	}
	full := make([]string, 0, len(p.LauncherPrefix)+len(args))
	full = append(full, p.LauncherPrefix[1:]...)
	full = append(full, executable)
	full = append(full, args...)
	return p.LauncherPrefix[0], full
}

func (p Platform) lines(out []byte) []string {
	sep := p.LineSep
	if sep == "" {
		sep = "\n"
	}
	raw := strings.Split(string(out), sep)
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r\n")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
