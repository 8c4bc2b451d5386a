package tsconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"go.uber.org/zap"
)

// InitOption is one compilerOptions entry written by Init.
type InitOption struct {
	Key   string
	Value any
}

// InitOptions are the compilerOptions Init guarantees. Together they keep
// erased output faithful: a modern target, standard class fields, and
// imports written exactly as they will run.
var InitOptions = []InitOption{
	{Key: "target", Value: "esnext"},
	{Key: "useDefineForClassFields", Value: true},
	{Key: "verbatimModuleSyntax", Value: true},
}

// Init creates or augments the config at path with InitOptions. Unrelated
// keys and comments of an existing file are kept. A missing or unparseable
// file is replaced by a fresh one.
func Init(path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logger.Debug("Config file does not exist, creating it", zap.String("path", path))
		return writeFresh(path, logger)
	case err != nil:
		logger.Warn("Failed to read config file, starting from an empty config", zap.String("path", path), zap.Error(err))
		return writeFresh(path, logger)
	}

	v, err := hujson.Parse(data)
	if err != nil {
		logger.Warn("Failed to parse config file, starting from an empty config", zap.String("path", path), zap.Error(err))
		return writeFresh(path, logger)
	}

	top, ok := objectMembers(v)
	if !ok {
		logger.Warn("Config file is not an object, starting from an empty config", zap.String("path", path))
		return writeFresh(path, logger)
	}

	patch, err := initPatch(top)
	if err != nil {
		return fmt.Errorf("failed to build config patch: %w", err)
	}
	if err := v.Patch(patch); err != nil {
		logger.Error("Failed to patch config file", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to patch config file: %w", err)
	}
	v.Format()

	return writeConfig(path, v.Pack(), logger)
}

// objectMembers decodes the top level of v into raw members, or reports that
// it is not a JSON object.
func objectMembers(v hujson.Value) (map[string]json.RawMessage, bool) {
	std := v.Clone()
	std.Standardize()
	packed := bytes.TrimSpace(std.Pack())
	if len(packed) == 0 || packed[0] != '{' {
		return nil, false
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(packed, &members); err != nil {
		return nil, false
	}
	return members, true
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// initPatch returns an RFC 6902 patch setting every InitOption.
func initPatch(top map[string]json.RawMessage) ([]byte, error) {
	var ops []patchOp

	existing := map[string]json.RawMessage{}
	co, hasOptions := top["compilerOptions"]
	trimmed := bytes.TrimSpace(co)
	if hasOptions && len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &existing); err != nil {
			return nil, err
		}
	} else {
		op := "add"
		if hasOptions {
			op = "replace"
		}
		ops = append(ops, patchOp{Op: op, Path: "/compilerOptions", Value: map[string]any{}})
	}

	for _, opt := range InitOptions {
		op := "add"
		if _, ok := existing[opt.Key]; ok {
			op = "replace"
		}
		ops = append(ops, patchOp{Op: op, Path: "/compilerOptions/" + escapePointer(opt.Key), Value: opt.Value})
	}
	return json.Marshal(ops)
}

func escapePointer(key string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(key)
}

// writeFresh writes a config that contains only InitOptions, in order.
func writeFresh(path string, logger *zap.Logger) error {
	var b bytes.Buffer
	b.WriteString("{\n\t\"compilerOptions\": {\n")
	for i, opt := range InitOptions {
		value, err := json.Marshal(opt.Value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", opt.Key, err)
		}
		fmt.Fprintf(&b, "\t\t%q: %s", opt.Key, value)
		if i < len(InitOptions)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("\t}\n}\n")
	return writeConfig(path, b.Bytes(), logger)
}

func writeConfig(path string, data []byte, logger *zap.Logger) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("Failed to create config directory", zap.String("path", dir), zap.Error(err))
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		data = append(data, '\n')
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Error("Failed to write config file", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to write config file: %w", err)
	}
	logger.Info("Wrote config file", zap.String("path", path))
	return nil
}
