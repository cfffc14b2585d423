package errors

import (
	"regexp"
	"strconv"
	"strings"
)

type outputPattern struct {
	regex       *regexp.Regexp
	parseFields func(matches []string) (file string, line, column int, message string)
}

var toolPatterns = []outputPattern{
	{
		regex: regexp.MustCompile(`^(.+?):(\d+):(\d+): (.+)$`),
		parseFields: func(matches []string) (string, int, int, string) {
			line, _ := strconv.Atoi(matches[2])
			column, _ := strconv.Atoi(matches[3])
			return matches[1], line, column, matches[4]
		},
	},
	{
		regex: regexp.MustCompile(`^(.+?):(\d+): (.+)$`),
		parseFields: func(matches []string) (string, int, int, string) {
			line, _ := strconv.Atoi(matches[2])
			return matches[1], line, 0, matches[3]
		},
	},
	{
		regex: regexp.MustCompile(`^go: (.+)$`),
		parseFields: func(matches []string) (string, int, int, string) {
			return "", 0, 0, matches[1]
		},
	},
}

// ParseToolOutput turns the output of an external check command, such as
// `go vet`, into warning diagnostics. Lines with a position keep it;
// package headers and unrecognized lines not mentioning an error are
// dropped.
func ParseToolOutput(tool, output string) List {
	var l List
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if ce := parseToolLine(tool, line); ce != nil {
			l.Add(ce)
		}
	}
	return l
}

func parseToolLine(tool, line string) *CompilerError {
	for _, p := range toolPatterns {
		if matches := p.regex.FindStringSubmatch(line); matches != nil {
			file, ln, col, message := p.parseFields(matches)
			return Warning(KindGeneration, file, ln, col, "%s: %s", tool, message)
		}
	}
	lower := strings.ToLower(line)
	if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
		return Warning(KindGeneration, "", 0, 0, "%s: %s", tool, line)
	}
	return nil
}
