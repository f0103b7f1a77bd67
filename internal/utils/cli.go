package utils

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/0xRadioAc7iv/segcask/internal"
)

var ErrEmptyLine = errors.New("empty command line")

// HandleCLIInputs parses the server flags in args (usually os.Args[1:]).
// When -config is given the YAML file is loaded first and any flag set
// explicitly on the command line overrides the value from the file.
func HandleCLIInputs(args []string) (*internal.ServerConfig, error) {
	defaults := internal.DefaultServerConfig()

	fs := flag.NewFlagSet("segcask", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	directoryPath := fs.String("dir", defaults.Directory, "Directory Path to be used for this instance")
	maxSegmentSizeInMB := fs.Int("segsize", defaults.MaxSegmentSizeMB, "Max Segment Size (in MB)")
	port := fs.Int("port", defaults.Port, "Port to use for the TCP Server")
	syncOnWrite := fs.Bool("sync", defaults.SyncOnWrite, "Flush every write to disk before acknowledging it")
	logLevel := fs.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaults
	if *configPath != "" {
		loaded, err := internal.LoadServerConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			cfg.Directory = *directoryPath
		case "segsize":
			cfg.MaxSegmentSizeMB = *maxSegmentSizeInMB
		case "port":
			cfg.Port = *port
		case "sync":
			cfg.SyncOnWrite = *syncOnWrite
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SplitStringIntoCommandAndArguments splits a REPL line into a command, a key
// and a value using shell quoting rules, so `set city "new york"` keeps the
// value intact. Words after the value are joined back with single spaces.
func SplitStringIntoCommandAndArguments(line string) (cmd, key, value string, err error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return "", "", "", fmt.Errorf("parse %q: %w", line, err)
	}
	if len(words) == 0 {
		return "", "", "", ErrEmptyLine
	}

	cmd = strings.ToLower(words[0])
	if len(words) > 1 {
		key = words[1]
	}
	if len(words) > 2 {
		value = strings.Join(words[2:], " ")
	}
	return cmd, key, value, nil
}
