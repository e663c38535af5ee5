package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wallet-bridge/go-backend/internal/engine"
)

const (
	maxSSELine       = 1 << 20
	streamHeadHeader = "X-Wallet-Stream-Head"
)

// subscription is one Listen call. The first connection starts at the
// daemon's head; reconnects resume after lastSeq.
type subscription struct {
	client   *Client
	filter   string
	callback engine.Callback
	lastSeq  int64
	resume   bool
}

type streamNotification struct {
	Method string `json:"method"`
	Params struct {
		Seq     int64  `json:"seq"`
		Payload string `json:"payload"`
	} `json:"params"`
}

func (s *subscription) open(ctx context.Context) (io.ReadCloser, error) {
	c := s.client
	query := url.Values{}
	if s.filter != "" {
		query.Set("events", s.filter)
	}
	if s.resume {
		query.Set("cursor", strconv.FormatInt(s.lastSeq, 10))
	}
	target := c.endpoint + "/rpc/stream"
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The stream lives as long as the handle, not the caller's context.
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("open event stream: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if !s.resume {
		if head, err := strconv.ParseInt(resp.Header.Get(streamHeadHeader), 10, 64); err == nil && head > 0 {
			s.lastSeq = head
		}
		s.resume = true
	}
	return resp.Body, nil
}

// run reads events until the handle closes, reconnecting with backoff.
func (s *subscription) run(body io.ReadCloser) {
	backoff := reconnectMin
	for {
		err := s.read(body)
		_ = body.Close()
		if s.client.ctx.Err() != nil {
			return
		}
		if err != nil {
			s.callback(fmt.Errorf("event stream interrupted: %w", err), "")
		}
		for {
			select {
			case <-s.client.ctx.Done():
				return
			case <-time.After(backoff):
			}
			next, err := s.open(s.client.ctx)
			if err == nil {
				body = next
				backoff = reconnectMin
				break
			}
			s.client.logger.Warn("event stream reconnect failed", "error", err)
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
		}
	}
}

func (s *subscription) read(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var note streamNotification
		if err := json.Unmarshal([]byte(data), &note); err != nil {
			s.callback(fmt.Errorf("decode event notification: %w", err), "")
			continue
		}
		if note.Params.Seq > 0 {
			if note.Params.Seq <= s.lastSeq {
				continue
			}
			s.lastSeq = note.Params.Seq
		}
		s.callback(nil, note.Params.Payload)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
