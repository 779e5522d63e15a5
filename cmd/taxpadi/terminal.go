package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single line of input, long pasted messages included
const maxLineSize = 1 << 20

// terminal reads line-oriented answers from the user
type terminal struct {
	in  *bufio.Scanner
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &terminal{in: sc, out: out}
}

// ask prints prompt and returns the trimmed next line, or io.EOF when input ends
func (t *terminal) ask(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)
	if !t.in.Scan() {
		if err := t.in.Err(); err != nil {
			return "", err
		}
		fmt.Fprintln(t.out)
		return "", io.EOF
	}
	return strings.TrimSpace(t.in.Text()), nil
}

// askDefault is ask with a value used when the answer is blank
func (t *terminal) askDefault(label, def string) (string, error) {
	prompt := label + ": "
	if def != "" {
		prompt = fmt.Sprintf("%s [%s]: ", label, def)
	}
	answer, err := t.ask(prompt)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// confirm asks a yes/no question; anything other than y or yes is no
func (t *terminal) confirm(prompt string) bool {
	answer, err := t.ask(prompt + " [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

// choose prints numbered options and returns the index picked
func (t *terminal) choose(prompt string, options []string) (int, error) {
	for {
		fmt.Fprintln(t.out, prompt)
		for i, opt := range options {
			fmt.Fprintf(t.out, "  %d) %s\n", i+1, opt)
		}
		answer, err := t.ask("> ")
		if err != nil {
			return 0, err
		}
		var n int
		if _, err := fmt.Sscanf(answer, "%d", &n); err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		for i, opt := range options {
			if strings.EqualFold(answer, opt) {
				return i, nil
			}
		}
		fmt.Fprintln(t.out, "Please pick one of the options.")
	}
}

func (t *terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) println(args ...any) {
	fmt.Fprintln(t.out, args...)
}
