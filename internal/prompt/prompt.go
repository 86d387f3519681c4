// Package prompt asks the operator how many times the scripts should run.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const (
	DefaultMessage = "Looping : "
	// DefaultCount is used when the operator just hits enter
	DefaultCount = 1
)

// ValidationMessage is printed when the input is rejected
const ValidationMessage = "Enter a valid number greater than 0"

var ErrInvalidCount = errors.New("invalid repeat count")

// ParseCount parses the repeat count. Empty input means DefaultCount,
// anything that is not a positive integer is ErrInvalidCount.
func ParseCount(input string) (int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return DefaultCount, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, ErrInvalidCount
	}
	return n, nil
}

type line struct {
	text string
	err  error
}

// Prompt reads repeat counts from an input stream. The stream is read by a
// single goroutine started on the first Ask and stopped by Close or at the
// end of input.
type Prompt struct {
	in      io.Reader
	out     io.Writer
	message string

	once  sync.Once
	lines chan line
	done  chan struct{}
	close sync.Once
}

func New(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{
		in:      in,
		out:     out,
		message: DefaultMessage,
		lines:   make(chan line),
		done:    make(chan struct{}),
	}
}

func (p *Prompt) WithMessage(message string) *Prompt {
	p.message = message
	return p
}

// Ask writes the prompt and waits for a valid count, re-asking on invalid
// input. It returns io.EOF when the input ends and ctx.Err() if ctx is done.
func (p *Prompt) Ask(ctx context.Context) (int, error) {
	p.once.Do(func() { go p.read() })
	for {
		if _, err := io.WriteString(p.out, p.message); err != nil {
			return 0, err
		}
		select {
		case <-ctx.Done():
			_, _ = io.WriteString(p.out, "\n")
			return 0, ctx.Err()
		case <-p.done:
			return 0, io.EOF
		case l, ok := <-p.lines:
			if !ok {
				return 0, io.EOF
			}
			if l.err != nil {
				return 0, l.err
			}
			n, err := ParseCount(l.text)
			if err != nil {
				_, _ = fmt.Fprintln(p.out, ValidationMessage)
				continue
			}
			return n, nil
		}
	}
}

// Close stops the reading goroutine. A goroutine blocked in Read of the
// underlying reader exits once the Read returns.
func (p *Prompt) Close() {
	p.close.Do(func() { close(p.done) })
}

func (p *Prompt) read() {
	defer close(p.lines)
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		select {
		case p.lines <- line{text: scanner.Text()}:
		case <-p.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case p.lines <- line{err: err}:
		case <-p.done:
		}
	}
}
