package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword reads one line from in. On a terminal the prompt is shown on
// out and the input is not echoed.
func readPassword(in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if _, err := io.WriteString(out, prompt); err != nil {
			return "", err
		}
		passwd, err := term.ReadPassword(int(f.Fd()))
		_, _ = io.WriteString(out, "\n")
		if err != nil {
			return "", err
		}
		return string(passwd), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("password required on stdin")
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
