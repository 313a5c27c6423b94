package capture

import (
	"fmt"
	"strings"

	"github.com/restitch/restitch/internal/utils"
	"github.com/rs/zerolog/log"
)

// RequestDescriptor is the parsed form of one captured segment request.
// Treated as read-only once parsed; one descriptor drives one pipeline run.
type RequestDescriptor struct {
	Method  string
	URL     string
	Headers map[string]string
}

// Parse accepts the three capture shapes seen in the wild: a browser
// "copy as cURL" command, a raw HTTP request dump, or a bare segment URL.
func Parse(text string) (*RequestDescriptor, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty capture")
	}
	var desc *RequestDescriptor
	var err error
	switch {
	case trimmed == "curl" || strings.HasPrefix(trimmed, "curl "):
		desc, err = ParseCurl(trimmed)
	case looksLikeRequestLine(trimmed):
		desc, err = ParseRawRequest(trimmed)
	default:
		desc = &RequestDescriptor{Method: "GET", URL: trimmed, Headers: map[string]string{}}
	}
	if err != nil {
		return nil, err
	}
	if !utils.ValidateURL(desc.URL) {
		return nil, fmt.Errorf("capture URL %q is not a valid http(s) URL", desc.URL)
	}
	log.Debug().Str("op", "capture/parse").Msgf("Parsed capture: %s %s with %d headers", desc.Method, desc.URL, len(desc.Headers))
	return desc, nil
}

// ParseCurl extracts method, URL and headers from a curl command line.
// Unknown boolean flags are ignored; unknown value flags would misparse,
// so the ones browsers emit are consumed explicitly.
func ParseCurl(command string) (*RequestDescriptor, error) {
	command = strings.TrimSpace(command)
	command = strings.TrimPrefix(command, "curl")
	words, err := splitShellWords(command)
	if err != nil {
		return nil, fmt.Errorf("error tokenizing curl command: %v", err)
	}
	desc := &RequestDescriptor{Method: "GET", Headers: map[string]string{}}
	for i := 0; i < len(words); i++ {
		word := words[i]
		switch {
		case word == "-H" || word == "--header":
			i++
			if i >= len(words) {
				return nil, fmt.Errorf("header flag missing value")
			}
			key, value, ok := splitHeaderLine(words[i])
			if ok {
				desc.Headers[key] = value
			}
		case word == "-X" || word == "--request":
			i++
			if i >= len(words) {
				return nil, fmt.Errorf("request flag missing value")
			}
			desc.Method = strings.ToUpper(words[i])
		case word == "-b" || word == "--cookie":
			i++
			if i >= len(words) {
				return nil, fmt.Errorf("cookie flag missing value")
			}
			desc.Headers["Cookie"] = words[i]
		case word == "--url":
			i++
			if i >= len(words) {
				return nil, fmt.Errorf("url flag missing value")
			}
			desc.URL = words[i]
		case word == "-o" || word == "--output" || word == "-d" || word == "--data" ||
			word == "--data-raw" || word == "--data-binary" || word == "-e" || word == "--referer":
			i++ // value flag irrelevant to the capture
		case strings.HasPrefix(word, "-"):
			// boolean flag like --compressed
		default:
			if desc.URL == "" {
				desc.URL = word
			}
		}
	}
	if desc.URL == "" {
		return nil, fmt.Errorf("no URL found in curl command")
	}
	return desc, nil
}

// ParseRawRequest parses a request dump: request line, then header lines
// until a blank line. Origin-form targets are joined with the Host header;
// the scheme is assumed https since dumps carry no scheme.
func ParseRawRequest(text string) (*RequestDescriptor, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	fields := strings.Fields(strings.TrimSpace(lines[0]))
	if len(fields) < 2 {
		return nil, fmt.Errorf("malformed request line: %q", lines[0])
	}
	desc := &RequestDescriptor{Method: strings.ToUpper(fields[0]), URL: fields[1], Headers: map[string]string{}}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		key, value, ok := splitHeaderLine(line)
		if ok {
			desc.Headers[key] = value
		}
	}
	if strings.HasPrefix(desc.URL, "/") {
		host := desc.Headers["Host"]
		if host == "" {
			return nil, fmt.Errorf("origin-form target %q without Host header", desc.URL)
		}
		desc.URL = "https://" + host + desc.URL
	}
	return desc, nil
}

func looksLikeRequestLine(text string) bool {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx != -1 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	return len(fields) == 3 && strings.HasPrefix(fields[2], "HTTP/")
}

func splitHeaderLine(line string) (string, string, bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// splitShellWords splits a command line the way a POSIX shell would for the
// quoting curl captures actually contain: single quotes are literal, double
// quotes honor backslash escapes, a backslash-newline is a continuation.
func splitShellWords(input string) ([]string, error) {
	var words []string
	var current strings.Builder
	inWord := false
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case c == '\'':
			inWord = true
			i++
			start := i
			for i < len(input) && input[i] != '\'' {
				i++
			}
			if i >= len(input) {
				return nil, fmt.Errorf("unterminated single quote")
			}
			current.WriteString(input[start:i])
		case c == '"':
			inWord = true
			i++
			for i < len(input) && input[i] != '"' {
				if input[i] == '\\' && i+1 < len(input) {
					switch input[i+1] {
					case '"', '\\', '$', '`':
						i++
					}
				}
				current.WriteByte(input[i])
				i++
			}
			if i >= len(input) {
				return nil, fmt.Errorf("unterminated double quote")
			}
		case c == '\\':
			if i+1 < len(input) {
				i++
				if input[i] != '\n' {
					inWord = true
					current.WriteByte(input[i])
				}
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			inWord = true
			current.WriteByte(c)
		}
	}
	if inWord {
		words = append(words, current.String())
	}
	return words, nil
}
