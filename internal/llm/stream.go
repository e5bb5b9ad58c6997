package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// Stream is a pull-based text stream from the generator. Recv blocks until
// the next content chunk arrives, returns io.EOF when the generator is done,
// and any other error on failure. Close releases the underlying connection
// and is safe to call more than once; the consumer guarantees it runs on
// every exit path.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// chatChunk is one decoded server-sent event from an OpenAI-compatible
// chat-completions endpoint. Streaming responses carry Delta, non-streaming
// fallbacks carry Message.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type sseStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	closeOnce sync.Once
	closeErr  error
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(bufio.NewReaderSize(body, 4096))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &sseStream{
		body:    body,
		scanner: scanner,
	}
}

func (s *sseStream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			// Comments and other SSE fields are keep-alive noise.
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return "", io.EOF
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Tolerate malformed events rather than killing the session;
			// the section parser copes with whatever text does arrive.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			content = chunk.Choices[0].Message.Content
		}
		if content != "" {
			return content, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
