// Package stream turns the server-sent-event body of a streaming completion
// into the JSON messages it carries.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	dataPrefix = "data: "
	doneLine   = "data: [DONE]"

	maxLineSize = 1 << 20
)

// Reader yields the payload of every data line until the [DONE] sentinel or
// the end of the underlying stream. It is not safe for concurrent use and
// cannot be rewound.
type Reader struct {
	scanner *bufio.Scanner
	done    bool
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: s}
}

// Next returns the next message. io.EOF marks a clean end of the stream.
func (r *Reader) Next() (string, error) {
	if r.done {
		return "", io.EOF
	}
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), " \t\r")
		if line == doneLine {
			r.done = true
			return "", io.EOF
		}
		if strings.HasPrefix(line, dataPrefix) {
			return line[len(dataPrefix):], nil
		}
	}
	r.done = true
	if err := r.scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return "", io.EOF
}

// ErrNoChoices is returned by Delta when a message carries no choices.
var ErrNoChoices = errors.New("stream message has no choices")

// Delta extracts choices[0].delta.content from a streamed completion message.
func Delta(message string) (string, error) {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(message), &chunk); err != nil {
		return "", fmt.Errorf("decode stream message: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return "", ErrNoChoices
	}
	return chunk.Choices[0].Delta.Content, nil
}
