// Package wireformat defines the JSON wire format structures exchanged
// between the extension host and guests. These types define the ABI
// contract and must stay backward compatible.
package wireformat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reglet-dev/exthost/domain/entities"
)

// Envelope is the result of every guest export and every host import.
// Exactly one of Ok or Err is set.
type Envelope struct {
	Ok  json.RawMessage       `json:"ok,omitempty"`
	Err *entities.ErrorDetail `json:"err,omitempty"`
}

// ErrEmptyEnvelope is returned when a payload carries neither "ok" nor "err".
var ErrEmptyEnvelope = errors.New("result envelope has neither ok nor err")

// EncodeOk wraps v in an ok envelope.
func EncodeOk(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ok value: %w", err)
	}
	return json.Marshal(Envelope{Ok: raw})
}

// EncodeErr wraps detail in an err envelope.
func EncodeErr(detail *entities.ErrorDetail) []byte {
	data, err := json.Marshal(Envelope{Err: detail})
	if err != nil {
		// ErrorDetail only fails to marshal on unsupported Details values.
		data, _ = json.Marshal(Envelope{Err: &entities.ErrorDetail{Type: detail.Type, Code: detail.Code, Message: detail.Message}})
	}
	return data
}

// Decode parses an envelope and checks that exactly one side is present.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Err == nil && env.Ok == nil {
		return nil, ErrEmptyEnvelope
	}
	if env.Err != nil && env.Ok != nil {
		return nil, errors.New("result envelope has both ok and err")
	}
	return &env, nil
}

// Host import request/response payloads.

// HandleRequest addresses a host resource by handle.
type HandleRequest struct {
	Handle uint32 `json:"handle"`
}

// ReadTextFileRequest asks a worktree for a file.
type ReadTextFileRequest struct {
	Path   string `json:"path"`
	Handle uint32 `json:"handle"`
}

// WhichRequest asks a worktree to resolve a binary.
type WhichRequest struct {
	BinaryName string `json:"binary_name"`
	Handle     uint32 `json:"handle"`
}

// KeyValueInsertRequest writes into a key-value store resource.
type KeyValueInsertRequest struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Handle uint32 `json:"handle"`
}

// ProcessExecRequest asks the host to run a command.
type ProcessExecRequest struct {
	Env       map[string]string `json:"env,omitempty"`
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	TimeoutMs int               `json:"timeout_ms,omitempty"`
}

// ProcessOutput is the result of a process_exec call.
type ProcessOutput struct {
	Status          *int   `json:"status"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
}

// Download file types.
const (
	FileTypeUncompressed = "uncompressed"
	FileTypeGzip         = "gzip"
	FileTypeGzipTar      = "gzip_tar"
	FileTypeZip          = "zip"
)

// DownloadFileRequest fetches a URL into the extension work directory.
type DownloadFileRequest struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	FileType string `json:"file_type" validate:"omitempty,oneof=uncompressed gzip gzip_tar zip"`
}

// PathRequest addresses a path inside the extension work directory.
type PathRequest struct {
	Path string `json:"path"`
}

// NpmPackageRequest names an npm package.
type NpmPackageRequest struct {
	Package string `json:"package"`
	Version string `json:"version,omitempty"`
}

// SettingsRequest reads a live application setting.
type SettingsRequest struct {
	Location *SettingsLocationWire `json:"location,omitempty"`
	Category string                `json:"category"`
	Key      string                `json:"key,omitempty"`
}

// SettingsLocationWire scopes a settings lookup.
type SettingsLocationWire struct {
	WorktreeID uint64 `json:"worktree_id"`
	Path       string `json:"path"`
}

// EnvPair is one shell environment entry.
type EnvPair [2]string
