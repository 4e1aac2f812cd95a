package modes

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrBadHexFrame is returned for lines that are not a *HEX; frame
var ErrBadHexFrame = errors.New("bad hex frame")

// ParseHexFrame parses a raw-format line such as "*8D4840D6202CC371C32CE0576098;"
func ParseHexFrame(line string) ([]byte, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != '*' || line[len(line)-1] != ';' {
		return nil, fmt.Errorf("%w: missing delimiters", ErrBadHexFrame)
	}

	body := line[1 : len(line)-1]
	if len(body) != ShortMsgBytes*2 && len(body) != LongMsgBytes*2 {
		return nil, fmt.Errorf("%w: %d hex digits", ErrBadHexFrame, len(body))
	}

	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHexFrame, err)
	}
	return raw, nil
}

// FormatHexFrame renders a frame in raw output format
func FormatHexFrame(raw []byte) string {
	return "*" + strings.ToUpper(hex.EncodeToString(raw)) + ";"
}
