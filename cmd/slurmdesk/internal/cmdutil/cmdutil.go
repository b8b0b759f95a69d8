package cmdutil

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/servicelocator"
	"github.com/slurmdesk/slurmdesk/internal/config"
	"github.com/slurmdesk/slurmdesk/internal/filesync"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/ssh"
)

const (
	PasswordEnv   = "SLURMDESK_PASSWORD"
	PassphraseEnv = "SLURMDESK_PASSPHRASE"
)

// ExitCodeOf maps an error to the exit status of the process.
func ExitCodeOf(err error) feedback.ExitCode {
	var cfgErr *config.ConfigurationError
	var cmdErr *remote.CommandError
	var syncErr *filesync.SyncError
	var parseErr *slurm.ParseError
	switch {
	case err == nil:
		return feedback.Success
	case errors.As(err, &cfgErr):
		return feedback.ErrConfiguration
	case errors.Is(err, remote.ErrNotConnected), errors.Is(err, ssh.ErrAuthFailed):
		return feedback.ErrNotConnected
	case errors.Is(err, slurm.ErrInvalidRequest):
		return feedback.ErrBadArgument
	case errors.As(err, &cmdErr), errors.As(err, &parseErr):
		return feedback.ErrRemoteCommand
	case errors.As(err, &syncErr), errors.Is(err, filesync.ErrTypeConflict):
		return feedback.ErrSync
	}
	return feedback.ErrGeneric
}

// Fatal prints err and exits with the matching exit code.
func Fatal(err error) {
	feedback.FatalError(err, ExitCodeOf(err))
}

// Connect opens the session with the credentials found in the environment.
// When the cluster refuses them and stdin is a terminal the password is
// asked once.
func Connect(ctx context.Context) (*session.Session, error) {
	s := servicelocator.GetSession()
	cred := session.Credentials{
		Password:   os.Getenv(PasswordEnv),
		Passphrase: os.Getenv(PassphraseEnv),
	}
	err := s.Connect(ctx, cred)
	if !errors.Is(err, ssh.ErrAuthFailed) || cred.Password != "" || !IsInteractive() {
		return s, err
	}
	settings := s.Config().Settings
	password, perr := ReadPassword(i18n.Tr("Password for %s@%s: ", settings.Username, settings.Host))
	if perr != nil {
		return s, perr
	}
	cred.Password = password
	return s, s.Connect(ctx, cred)
}

// MustConnect is Connect exiting the process on failure.
func MustConnect(ctx context.Context) *session.Session {
	s, err := Connect(ctx)
	if err != nil {
		Fatal(err)
	}
	return s
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ReadPassword prompts on stderr and reads a line from the terminal without
// echoing it.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// Confirm asks a yes/no question, forceYes skips it.
func Confirm(in io.Reader, question string, forceYes bool) (bool, error) {
	if forceYes {
		return true, nil
	}
	feedback.Printf("%s (yes/no)", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "yes" || answer == "y", nil
}
