package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/schema"
	"golang.org/x/term"
)

// enumAttempts is how many times an enum field is asked before giving up.
const enumAttempts = 3

// Prompter asks for field values on a line-oriented input.
type Prompter struct {
	lines *bufio.Reader
	out   io.Writer
	// fd is the terminal used for secrets, or -1 when input is not one.
	fd int
}

// NewPrompter reads from stdin and writes prompts to stdout.
func NewPrompter() *Prompter {
	p := &Prompter{lines: bufio.NewReader(os.Stdin), out: os.Stdout, fd: -1}
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		p.fd = fd
	}
	return p
}

// NewPrompterFrom reads answers from r and writes prompts to w. Secrets
// are echoed like any other answer.
func NewPrompterFrom(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{lines: bufio.NewReader(r), out: w, fd: -1}
}

// PromptForFields asks for each required field that has no default and is
// not in given. Answers are keyed by field name.
func (p *Prompter) PromptForFields(res convention.Derived, given url.Values) (map[string]string, error) {
	answers := make(map[string]string)
	for _, f := range res.Fields {
		if !needsAnswer(f, given) {
			continue
		}
		v, err := p.ask(f)
		if err != nil {
			return nil, err
		}
		answers[f.Name] = v
	}
	return answers, nil
}

func needsAnswer(f convention.DerivedField, given url.Values) bool {
	if !f.Required || f.Implicit || f.Default != nil {
		return false
	}
	_, ok := given[f.Name]
	return !ok
}

func (p *Prompter) ask(f convention.DerivedField) (string, error) {
	label := fieldLabel(f)
	if f.Type == schema.FieldTypeSecret {
		v, err := p.PromptSecret(label)
		if err != nil {
			return "", err
		}
		if v == "" {
			return "", fmt.Errorf("field %q is required", f.Name)
		}
		return v, nil
	}

	attempts := 1
	if isEnum(f) {
		attempts = enumAttempts
	}
	for i := 0; i < attempts; i++ {
		v, err := p.Prompt(label)
		if err != nil {
			return "", err
		}
		switch {
		case v == "":
			return "", fmt.Errorf("field %q is required", f.Name)
		case isEnum(f) && !slices.Contains(f.Values, v):
			fmt.Fprintf(p.out, "%q is not one of %s\n", v, strings.Join(f.Values, ", "))
		default:
			return v, nil
		}
	}
	return "", fmt.Errorf("field %q: no valid value after %d attempts", f.Name, attempts)
}

func isEnum(f convention.DerivedField) bool {
	return f.Type == schema.FieldTypeEnum && len(f.Values) > 0
}

// fieldLabel renders "Release date [lp/ep] (required): ".
func fieldLabel(f convention.DerivedField) string {
	var b strings.Builder
	b.WriteString(convention.Humanize(f.Name))
	if isEnum(f) {
		fmt.Fprintf(&b, " [%s]", strings.Join(f.Values, "/"))
	}
	b.WriteString(" (required): ")
	return b.String()
}

// Prompt writes prompt and returns the next input line, trimmed. A last
// line without a newline is accepted.
func (p *Prompter) Prompt(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.lines.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptSecret reads without echo when input is a terminal.
func (p *Prompter) PromptSecret(prompt string) (string, error) {
	if p.fd < 0 {
		return p.Prompt(prompt)
	}
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Confirm asks a yes/no question. Anything but y or yes is no.
func (p *Prompter) Confirm(question string) (bool, error) {
	answer, err := p.Prompt(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// DefaultPrompter is used by channels that were not given one.
var DefaultPrompter = NewPrompter()
