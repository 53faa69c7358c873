package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"gym-management/gym"
)

// prompter reads operator answers line by line. Secrets are read without
// echo when the input is a terminal.
type prompter struct {
	in  io.Reader
	sc  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, sc: bufio.NewScanner(in), out: out}
}

// line prints label and returns the trimmed answer; ok is false at end of input.
func (p *prompter) line(label string) (string, bool) {
	fmt.Fprint(p.out, label)
	if !p.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.sc.Text()), true
}

// secret reads a PIN, masked on a terminal.
func (p *prompter) secret(label string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read PIN: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	s, ok := p.line(label)
	if !ok {
		return "", io.ErrUnexpectedEOF
	}
	return s, nil
}

func (p *prompter) yes(label string) bool {
	s, ok := p.line(label + " [y/N]: ")
	if !ok {
		return false
	}
	s = strings.ToLower(s)
	return s == "y" || s == "yes"
}

// confirmer asks before a reminder batch starts. End of input declines.
func (p *prompter) confirmer() gym.Confirmer {
	return gym.ConfirmFunc(func(ctx context.Context, pending int) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return p.yes(fmt.Sprintf("%d member(s) will be messaged. Is WhatsApp open and ready?", pending)), nil
	})
}

// optionalString returns nil for a blank answer so the current value is kept.
func (p *prompter) optionalString(label string) (*string, bool) {
	s, ok := p.line(label)
	if !ok || s == "" {
		return nil, ok
	}
	return &s, true
}

func (p *prompter) optionalInt(label string) (*int, bool, error) {
	s, ok := p.line(label)
	if !ok || s == "" {
		return nil, ok, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, true, fmt.Errorf("invalid number %q", s)
	}
	return &n, true, nil
}

func (p *prompter) optionalFloat(label string) (*float64, bool, error) {
	s, ok := p.line(label)
	if !ok || s == "" {
		return nil, ok, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, true, fmt.Errorf("invalid amount %q", s)
	}
	return &f, true, nil
}

func (p *prompter) optionalDate(label string) (*time.Time, bool, error) {
	s, ok := p.line(label)
	if !ok || s == "" {
		return nil, ok, nil
	}
	d, err := gym.ParseDate(s)
	if err != nil {
		return nil, true, err
	}
	return &d, true, nil
}

func (p *prompter) id(label string) (int64, bool, error) {
	s, ok := p.line(label)
	if !ok {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("invalid ID: %s", s)
	}
	return id, true, nil
}
