package detector

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/loykin/tabguard/internal/process"
)

// RendererFlag is the launch argument chromium passes to every renderer process.
const RendererFlag = "--renderer-client-id="

var (
	ErrEmptyCmdline   = errors.New("command line is empty")
	ErrInvalidCmdline = errors.New("command line is not valid UTF-8")
	ErrNoRendererID   = errors.New("no renderer client id argument")
	ErrBadRendererID  = errors.New("invalid renderer client id")
)

// RendererDetector identifies renderers by the --renderer-client-id launch argument.
type RendererDetector struct{}

func (RendererDetector) Resolve(table process.Table, browser string) map[int64]int32 {
	out := make(map[int64]int32)
	for _, p := range table.ByName(browser) {
		id, err := RendererClientID(p.Cmdline)
		if err != nil {
			// Browser, GPU and utility processes carry no id; anything else is worth a line.
			if !errors.Is(err, ErrNoRendererID) {
				slog.Warn("Skip browser process", "pid", p.PID, "error", err)
			}
			continue
		}
		out[id] = p.PID
	}
	return out
}

func (RendererDetector) Describe() string { return "cmdline:" + RendererFlag + "<id>" }

// RendererClientID extracts the renderer id from a process command line.
// Renderers rewrite their argv into one space separated string, so every
// element is split on whitespace before looking for the flag.
func RendererClientID(cmdline []string) (int64, error) {
	if len(cmdline) == 0 {
		return 0, ErrEmptyCmdline
	}
	for _, elem := range cmdline {
		if !utf8.ValidString(elem) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCmdline, elem)
		}
		for _, arg := range strings.Fields(elem) {
			if !strings.HasPrefix(arg, RendererFlag) {
				continue
			}
			raw := strings.TrimPrefix(arg, RendererFlag)
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w %q: %v", ErrBadRendererID, raw, err)
			}
			return id, nil
		}
	}
	return 0, ErrNoRendererID
}
