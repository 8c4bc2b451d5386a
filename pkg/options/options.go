// Package options holds the immutable run configuration built once from
// command-line flags and environment, then handed to each component.
package options

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Environment variables consulted for flag defaults.
const (
	EnvConfig    = "TSBLANK_CONFIG"
	EnvExtension = "TSBLANK_EXTENSION"
	EnvDebug     = "TSBLANK_DEBUG"
)

// Defaults for flags without an environment override.
const (
	DefaultConfigPath = "./tsconfig.json"
	DefaultExtension  = "js"
)

// Options is the resolved invocation. It is passed by value.
type Options struct {
	ConfigPath string   // tsconfig.json location.
	Extension  string   // Output extension for .ts sources, without the leading dot.
	Watch      bool     // Run the watch coordinator instead of a single batch.
	Init       bool     // Create or augment ConfigPath, then exit.
	Paths      []string // Positional files or glob patterns.
	Jobs       int      // Maximum concurrent per-file tasks.
	Verify     bool     // Parse blanked output with esbuild before writing.
	Quiet      bool     // Suppress "source -> destination" lines.
	Debug      bool     // Development logger at debug level.
}

// Default returns options populated from the environment and built-in defaults.
func Default() Options {
	return Options{
		ConfigPath: envOr(EnvConfig, DefaultConfigPath),
		Extension:  envOr(EnvExtension, DefaultExtension),
		Jobs:       runtime.NumCPU(),
		Verify:     true,
		Debug:      envBool(EnvDebug),
	}
}

// Normalize validates o and returns a cleaned copy.
func (o Options) Normalize() (Options, error) {
	o.Extension = strings.TrimPrefix(strings.TrimSpace(o.Extension), ".")
	if o.Extension == "" {
		return o, fmt.Errorf("output extension must not be empty")
	}
	if strings.ContainsAny(o.Extension, `/\`) {
		return o, fmt.Errorf("output extension %q must not contain path separators", o.Extension)
	}
	if reservedExtension(o.Extension) {
		return o, fmt.Errorf("output extension %q would overwrite TypeScript sources or declaration files", o.Extension)
	}
	if o.ConfigPath == "" {
		o.ConfigPath = DefaultConfigPath
	}
	if o.Jobs <= 0 {
		o.Jobs = runtime.NumCPU()
	}
	o.Paths = append([]string(nil), o.Paths...)
	return o, nil
}

// reservedExtension reports whether ext names TypeScript input or
// declaration files.
func reservedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case "ts", "tsx", "mts", "cts":
		return true
	}
	return strings.HasPrefix(strings.ToLower(ext), "d.")
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
