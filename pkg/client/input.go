package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

// LineReader reads one line of user input after showing prompt
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// NewLineReader uses readline when stdin and stdout are terminals and plain
// buffered input otherwise.
func NewLineReader(historyFile string) (LineReader, error) {
	if IsTTY(os.Stdin) && IsTTY(os.Stdout) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "You: ",
			HistoryFile:     historyFile,
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
		})
		if err == nil {
			return &readlineReader{rl: rl}, nil
		}
	}
	return NewBufioReader(os.Stdin, os.Stdout), nil
}

// IsTTY reports whether f is a character device
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

type readlineReader struct {
	rl *readline.Instance
}

func (r *readlineReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	return line, err
}

func (r *readlineReader) Close() error {
	return r.rl.Close()
}

type bufioReader struct {
	in  *bufio.Reader
	out io.Writer
}

// NewBufioReader reads lines from in and writes prompts to out
func NewBufioReader(in io.Reader, out io.Writer) LineReader {
	return &bufioReader{in: bufio.NewReader(in), out: out}
}

func (r *bufioReader) ReadLine(prompt string) (string, error) {
	if r.out != nil && prompt != "" {
		fmt.Fprint(r.out, prompt)
	}
	line, err := r.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (r *bufioReader) Close() error {
	return nil
}
