package feedback

// ExitCode is the process exit status of a failed command.
type ExitCode int

const (
	// Success (0 is the no error return code in Unix)
	Success ExitCode = iota
	// ErrGeneric Generic error (1 is the reserved "catchall" code in Unix)
	ErrGeneric
	// ErrConfiguration a required setting is missing or invalid
	ErrConfiguration
	// ErrNotConnected the cluster could not be reached
	ErrNotConnected
	// ErrRemoteCommand a command exited with a non zero code on the cluster
	ErrRemoteCommand
	// ErrSync a file transfer failed
	ErrSync
	_ // 6 reserved
	// ErrBadArgument invalid flag or argument
	ErrBadArgument
)
