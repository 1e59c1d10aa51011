package engine

import (
	"strconv"
	"strings"

	"landscapesim/pkg/batch/util/exception"
)

const resultMarker = "(Y)"

// parseProjects reads "pid name..." lines. Lines that do not start with an
// integer are headers.
func parseProjects(lines []string) map[int]string {
	out := make(map[int]string)
	for _, l := range lines {
		tok := strings.Fields(l)
		if len(tok) == 0 {
			continue
		}
		pid, err := strconv.Atoi(tok[0])
		if err != nil {
			continue
		}
		out[pid] = strings.Join(tok[1:], " ")
	}
	return out
}

// parseScenarios reads "sid pid [(Y)] name..." lines. A trailing
// modification-time annotation ending in "M)" spans the last five tokens of
// the name and is dropped.
func parseScenarios(lines []string) []ScenarioAttrs {
	var out []ScenarioAttrs
	for _, l := range lines {
		tok := strings.Fields(l)
		if len(tok) < 2 {
			continue
		}
		sid, err := strconv.Atoi(tok[0])
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(tok[1])
		if err != nil {
			continue
		}
		attrs := ScenarioAttrs{SID: sid, PID: pid}
		name := tok[2:]
		if len(name) > 0 && name[0] == resultMarker {
			attrs.IsResult = true
			name = name[1:]
		}
		if len(name) > 0 && strings.HasSuffix(name[len(name)-1], "M)") {
			if len(name) >= 5 {
				name = name[:len(name)-5]
			} else {
				name = nil
			}
		}
		attrs.Name = strings.Join(name, " ")
		out = append(out, attrs)
	}
	return out
}

// parseDatafeeds skips the header line and takes the last token of each
// remaining line.
func parseDatafeeds(lines []string) map[string]struct{} {
	out := make(map[string]struct{})
	for i, l := range lines {
		if i == 0 {
			continue
		}
		tok := strings.Fields(l)
		if len(tok) == 0 {
			continue
		}
		out[tok[len(tok)-1]] = struct{}{}
	}
	return out
}

// parseReports skips the header line and takes the first token of each
// remaining line.
func parseReports(lines []string) map[string]struct{} {
	out := make(map[string]struct{})
	for i, l := range lines {
		if i == 0 {
			continue
		}
		tok := strings.Fields(l)
		if len(tok) == 0 {
			continue
		}
		out[tok[0]] = struct{}{}
	}
	return out
}

// parseRunResult reads the new scenario id from the last stdout token.
func parseRunResult(lines []string) (int, error) {
	if len(lines) == 0 {
		return 0, exception.New(exception.KindProtocol, "engine", "run printed nothing", nil)
	}
	tok := strings.Fields(lines[len(lines)-1])
	if len(tok) == 0 {
		return 0, exception.New(exception.KindProtocol, "engine", "run printed an empty line", nil)
	}
	last := strings.TrimRight(tok[len(tok)-1], ".")
	sid, err := strconv.Atoi(last)
	if err != nil {
		return 0, exception.Newf(exception.KindProtocol, "engine", "run output ends with %q, not a scenario id", last, err)
	}
	return sid, nil
}
