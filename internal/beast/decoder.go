package beast

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrShortFrame is returned when a frame ends before its payload does.
var ErrShortFrame = errors.New("short beast frame")

// maxBuffered bounds the bytes kept while waiting for a frame to complete.
const maxBuffered = 4096

// Decoder splits a Beast byte stream into messages. It keeps partial frames
// between calls, so one Decoder serves one connection.
type Decoder struct {
	logger *logrus.Logger
	buffer []byte
	now    func() time.Time

	dropped uint64
}

// NewDecoder creates a new Beast decoder
func NewDecoder(logger *logrus.Logger) *Decoder {
	return &Decoder{
		logger: logger,
		buffer: make([]byte, 0, maxBuffered),
		now:    time.Now,
	}
}

// Dropped returns how many bytes were skipped while resynchronising.
func (d *Decoder) Dropped() uint64 {
	return d.dropped
}

// Decode appends data to the stream and returns every complete message.
func (d *Decoder) Decode(data []byte) []*Message {
	d.buffer = append(d.buffer, data...)

	var messages []*Message
	for {
		start := d.findSync()
		if start < 0 {
			// keep a trailing sync byte, its type may be in the next read
			if n := len(d.buffer); n > 0 && d.buffer[n-1] == SyncByte {
				d.skip(n - 1)
			} else {
				d.skip(n)
			}
			break
		}
		d.skip(start)

		msg, used, err := parseFrame(d.buffer)
		if errors.Is(err, ErrShortFrame) {
			break
		}
		if err != nil {
			d.logger.WithError(err).Debug("Discarding beast frame")
			d.skip(1)
			continue
		}

		msg.Received = d.now()
		messages = append(messages, msg)
		d.buffer = d.buffer[used:]
	}

	if len(d.buffer) > maxBuffered {
		d.skip(len(d.buffer))
	}
	// compact so the backing array does not grow without bound
	if cap(d.buffer) > 2*maxBuffered {
		d.buffer = append(make([]byte, 0, maxBuffered), d.buffer...)
	}

	return messages
}

func (d *Decoder) skip(n int) {
	if n <= 0 {
		return
	}
	d.dropped += uint64(n)
	d.buffer = d.buffer[n:]
}

// findSync returns the index of the first 0x1A that starts a frame, that is
// one not followed by another 0x1A. It returns -1 when the buffer holds no
// usable start yet.
func (d *Decoder) findSync() int {
	for i := 0; i+1 < len(d.buffer); i++ {
		if d.buffer[i] != SyncByte {
			continue
		}
		if d.buffer[i+1] == SyncByte {
			i++
			continue
		}
		return i
	}
	return -1
}

// parseFrame decodes the frame at the start of buf, which begins with a
// sync byte. It returns the message and the number of escaped bytes used.
func parseFrame(buf []byte) (*Message, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrShortFrame
	}

	messageType := buf[1]
	n := payloadLen(messageType)
	if n == 0 {
		return nil, 0, fmt.Errorf("unknown message type 0x%02x", messageType)
	}

	body := make([]byte, 0, headerLen+n)
	i := 2
	for len(body) < headerLen+n {
		if i >= len(buf) {
			return nil, 0, ErrShortFrame
		}
		b := buf[i]
		if b == SyncByte {
			if i+1 >= len(buf) {
				return nil, 0, ErrShortFrame
			}
			if buf[i+1] != SyncByte {
				return nil, 0, fmt.Errorf("unescaped sync byte at offset %d", i)
			}
			i++
		}
		body = append(body, b)
		i++
	}

	var mlat uint64
	for _, b := range body[:timestampLen] {
		mlat = mlat<<8 | uint64(b)
	}

	return &Message{
		MessageType: messageType,
		MLAT:        mlat,
		Signal:      body[timestampLen],
		Data:        body[headerLen:],
	}, i, nil
}
