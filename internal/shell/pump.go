package shell

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/asheshgoplani/shell-deck/internal/logging"
)

var shellLog = logging.ForComponent(logging.CompShell)

// DefaultReadSize is the transfer buffer used by each Pump.
const DefaultReadSize = 512 * 1024

// Origin tells which interpreter stream a chunk came from.
type Origin int

const (
	Stdout Origin = iota
	Stderr
)

func (o Origin) String() string {
	if o == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Chunk is one read's worth of interpreter output.
type Chunk struct {
	Text   string
	Origin Origin
}

// Sink receives chunks. It is called from the pump goroutine.
type Sink func(Chunk)

// Pump drains one output stream of the interpreter into a Sink.
type Pump struct {
	origin  Origin
	r       io.Reader
	sink    Sink
	bufSize int
}

// NewPump creates a pump for r. bufSize <= 0 selects DefaultReadSize.
func NewPump(origin Origin, r io.Reader, sink Sink, bufSize int) *Pump {
	if bufSize <= 0 {
		bufSize = DefaultReadSize
	}
	return &Pump{origin: origin, r: r, sink: sink, bufSize: bufSize}
}

// Run blocks reading until the stream ends. Every non-empty read becomes a
// Chunk; a UTF-8 sequence cut by the read boundary is held back and sent
// with the next read. End of stream returns nil, any other read error is
// returned. Run never retries: a closed stream means the interpreter is gone.
func (p *Pump) Run() error {
	buf := make([]byte, p.bufSize+utf8.UTFMax)
	carry := 0

	for {
		n, err := p.r.Read(buf[carry : carry+p.bufSize])
		n += carry
		carry = 0

		if n > 0 {
			end := n
			if err == nil {
				end = completeRunes(buf[:n])
			}
			if end > 0 {
				p.emit(string(buf[:end]))
			}
			carry = copy(buf, buf[end:n])
		}

		if err != nil {
			if carry > 0 {
				p.emit(string(buf[:carry]))
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				shellLog.Debug("pump_eof", slog.String("origin", p.origin.String()))
				return nil
			}
			shellLog.Debug("pump_read_error",
				slog.String("origin", p.origin.String()),
				slog.String("error", err.Error()))
			return err
		}
	}
}

func (p *Pump) emit(text string) {
	logging.Aggregate(logging.CompShell, "chunk",
		slog.String("origin", p.origin.String()),
		slog.Int("bytes", len(text)))
	p.sink(Chunk{Text: text, Origin: p.origin})
}

// completeRunes returns the length of the prefix of b that does not end in
// the middle of a UTF-8 sequence.
func completeRunes(b []byte) int {
	n := len(b)
	for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return n
			}
			return i
		}
	}
	return n
}
