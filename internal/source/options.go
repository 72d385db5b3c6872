package source

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

// FileOptions configures a static CSV file source.
type FileOptions struct {
	// Path to the CSV file, relative to the project directory.
	Path string `mapstructure:"path"`
	// Header controls whether the first row names the columns. Without a
	// header, fields map to table columns by position.
	Header bool `mapstructure:"header"`
	// Delimiter is a single-character field separator. Defaults to ",".
	Delimiter string `mapstructure:"delimiter"`
	// Encoding is an IANA character encoding label. Defaults to UTF-8.
	Encoding string `mapstructure:"encoding"`
}

// HTTPOptions configures a dynamic API source. The endpoint must return
// a JSON array of objects.
type HTTPOptions struct {
	URL     string            `mapstructure:"url"`
	Method  string            `mapstructure:"method"`
	Headers map[string]string `mapstructure:"headers"`
	// Timeout is a Go duration string, e.g. "30s".
	Timeout string `mapstructure:"timeout"`
}

// TimeoutDuration returns the parsed request timeout.
func (o HTTPOptions) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(o.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ExecOptions configures a command source: the command runs once and its
// stdout is parsed as CSV.
type ExecOptions struct {
	Command  string   `mapstructure:"command"`
	Args     []string `mapstructure:"args"`
	Header   bool     `mapstructure:"header"`
	Encoding string   `mapstructure:"encoding"`
}

// DecodeFileOptions decodes and checks the option map of a file source.
func DecodeFileOptions(src manifest.Source) (FileOptions, error) {
	opts := FileOptions{Header: true}
	if err := decodeOptions(src, &opts); err != nil {
		return opts, err
	}
	if opts.Path == "" {
		return opts, optionError(src, "missing required option %q", "path")
	}
	if len(opts.Delimiter) > 1 {
		return opts, optionError(src, "option %q must be a single character", "delimiter")
	}
	return opts, nil
}

// DecodeHTTPOptions decodes and checks the option map of an http source.
func DecodeHTTPOptions(src manifest.Source) (HTTPOptions, error) {
	var opts HTTPOptions
	if err := decodeOptions(src, &opts); err != nil {
		return opts, err
	}
	if opts.URL == "" {
		return opts, optionError(src, "missing required option %q", "url")
	}
	if opts.Timeout != "" {
		if _, err := time.ParseDuration(opts.Timeout); err != nil {
			return opts, optionError(src, "option %q is not a valid duration", "timeout")
		}
	}
	return opts, nil
}

// DecodeExecOptions decodes and checks the option map of an exec source.
func DecodeExecOptions(src manifest.Source) (ExecOptions, error) {
	opts := ExecOptions{Header: true}
	if err := decodeOptions(src, &opts); err != nil {
		return opts, err
	}
	if opts.Command == "" {
		return opts, optionError(src, "missing required option %q", "command")
	}
	return opts, nil
}

// ValidateOptions checks a source's option map against the closed option
// set its kind recognizes. The schema validator calls this before any
// connector is constructed.
func ValidateOptions(src manifest.Source) error {
	var err error
	switch src.Kind {
	case manifest.SourceFile:
		_, err = DecodeFileOptions(src)
	case manifest.SourceHTTP:
		_, err = DecodeHTTPOptions(src)
	case manifest.SourceExec:
		_, err = DecodeExecOptions(src)
	default:
		err = fmt.Errorf("source %q: unknown kind %q", src.Name, src.Kind)
	}
	return err
}

// decodeOptions maps the raw option map onto a kind-specific struct.
// ErrorUnused makes unrecognized option keys a hard error instead of
// silently ignoring them.
func decodeOptions(src manifest.Source, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(src.Options); err != nil {
		return fmt.Errorf("source %q: invalid options: %w", src.Name, err)
	}
	return nil
}

func optionError(src manifest.Source, format string, args ...any) error {
	return fmt.Errorf("source %q: "+format, append([]any{src.Name}, args...)...)
}
