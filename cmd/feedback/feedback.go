// Package feedback is how commands talk to the user. Results are printed as
// text for humans or encoded for scripts, depending on --format.
package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/slurmdesk/slurmdesk/cmd/i18n"
)

type OutputFormat int

const (
	Text OutputFormat = iota
	JSON
	MinifiedJSON
	YAML
)

var formatNames = map[OutputFormat]string{
	Text:         "text",
	JSON:         "json",
	MinifiedJSON: "jsonmini",
	YAML:         "yaml",
}

func (f OutputFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	panic(fmt.Sprintf("unknown output format %d", int(f)))
}

// ParseOutputFormat reports false for an unknown format name.
func ParseOutputFormat(in string) (OutputFormat, bool) {
	for f, name := range formatNames {
		if name == in {
			return f, true
		}
	}
	return Text, false
}

var (
	stdOut   io.Writer
	stdErr   io.Writer
	exitFunc = os.Exit

	// feedbackOut and feedbackErr are handed to commands streaming remote
	// output; everything written there is also kept in the buffers.
	feedbackOut io.Writer
	feedbackErr io.Writer
	bufferOut   *bytes.Buffer
	bufferErr   *bytes.Buffer

	warnings       []string
	format         OutputFormat
	formatSelected bool
)

// nolint:gochecknoinits
func init() {
	reset()
}

func reset() {
	stdOut, stdErr = os.Stdout, os.Stderr
	feedbackOut, feedbackErr = os.Stdout, os.Stderr
	bufferOut, bufferErr = &bytes.Buffer{}, &bytes.Buffer{}
	exitFunc = os.Exit
	warnings = nil
	format = Text
	formatSelected = false
}

// Result is printed with String in text format and encoded from Data
// otherwise.
type Result interface {
	fmt.Stringer
	Data() interface{}
}

// ErrorResult adds a part going to stderr in text format.
type ErrorResult interface {
	Result
	ErrorString() string
}

func mustBeUnselected() {
	if formatSelected {
		panic("output format already selected")
	}
}

func SetOut(out io.Writer) {
	mustBeUnselected()
	stdOut = out
}

func SetErr(err io.Writer) {
	mustBeUnselected()
	stdErr = err
}

// SetFormat fixes the output format for the rest of the process.
func SetFormat(f OutputFormat) {
	mustBeUnselected()
	format = f
	formatSelected = true

	if format == Text {
		feedbackOut = io.MultiWriter(bufferOut, stdOut)
		feedbackErr = io.MultiWriter(bufferErr, stdErr)
		return
	}
	feedbackOut = bufferOut
	feedbackErr = bufferErr
	warnings = nil
}

func GetFormat() OutputFormat {
	return format
}

func Printf(format string, v ...interface{}) {
	Print(fmt.Sprintf(format, v...))
}

func Print(v string) {
	fmt.Fprintln(feedbackOut, v)
}

// Warnf prints on stderr in text format. In the other formats the warning
// is attached to the next encoded result.
func Warnf(msg string, args ...interface{}) {
	msg = fmt.Sprintf(msg, args...)
	slog.Warn(msg)
	if format == Text {
		fmt.Fprintln(feedbackErr, msg)
		return
	}
	warnings = append(warnings, msg)
}

func FatalError(err error, exitCode ExitCode) {
	Fatal(err.Error(), exitCode)
}

func FatalResult(res ErrorResult, exitCode ExitCode) {
	PrintResult(res)
	exitFunc(int(exitCode))
}

// Fatal prints errorMsg on stderr, together with any captured remote output
// when the format is not text, and exits.
func Fatal(errorMsg string, exitCode ExitCode) {
	defer exitFunc(int(exitCode))
	if format == Text {
		fmt.Fprintln(stdErr, errorMsg)
		return
	}

	type fatalError struct {
		Error  string               `json:"error"`
		Output *OutputStreamsResult `json:"output,omitempty"`
	}
	res := fatalError{Error: errorMsg}
	if output := getOutputStreamResult(); !output.Empty() {
		res.Output = output
	}
	d, err := encode(res)
	if err != nil {
		fmt.Fprintln(stdErr, errorMsg)
		return
	}
	fmt.Fprintln(stdErr, d)
}

// withWarnings adds the pending warnings to data, when data encodes as an
// object.
func withWarnings(data interface{}) interface{} {
	if len(warnings) == 0 {
		return data
	}
	d, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var m map[string]interface{}
	if err := json.Unmarshal(d, &m); err != nil {
		return data
	}
	m["warnings"] = warnings
	return m
}

// toGeneric re-decodes data from JSON so the yaml encoder sees the json
// field names.
func toGeneric(data interface{}) (interface{}, error) {
	d, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(d, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encode(data interface{}) (string, error) {
	data = withWarnings(data)
	switch format {
	case JSON:
		d, err := json.MarshalIndent(data, "", "  ")
		return string(d), err
	case MinifiedJSON:
		d, err := json.Marshal(data)
		return string(d), err
	case YAML:
		v, err := toGeneric(data)
		if err != nil {
			return "", err
		}
		d, err := yaml.Marshal(v)
		return string(bytes.TrimRight(d, "\n")), err
	}
	panic("unknown output format")
}

// PrintResult prints res on stdout, and the ErrorString of an ErrorResult
// on stderr in text format.
func PrintResult(res Result) {
	if format == Text {
		if data := res.String(); data != "" {
			fmt.Fprintln(stdOut, data)
		}
		if resErr, ok := res.(ErrorResult); ok {
			if dataErr := resErr.ErrorString(); dataErr != "" {
				fmt.Fprintln(stdErr, dataErr)
			}
		}
		return
	}

	data, err := encode(res.Data())
	if err != nil {
		Fatal(i18n.Tr("Error during %s encoding of the output: %v", format, err), ErrGeneric)
		return
	}
	if data != "" {
		fmt.Fprintln(stdOut, data)
	}
}
