//go:build no_automation

package automation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zigbee-ezsp-host/internal/coordinator"
	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

// ErrDisabled is returned by every script operation in builds without
// automation.
var ErrDisabled = errors.New("automation disabled")

// ErrInvalidID is returned for script IDs that are not safe filename stems.
var ErrInvalidID = errors.New("invalid script id")

// Controller is the part of the coordinator that scripts can reach.
type Controller interface {
	Context() context.Context
	Events() *ezsp.EventBus
	Info() coordinator.Info
	Nodes() ([]*store.Node, error)
	PermitJoin(ctx context.Context, duration uint8) error
	SendUnicast(ctx context.Context, destination uint16, aps ezsp.ApsFrame, payload []byte) (uint16, error)
	SendBroadcast(ctx context.Context, destination uint16, aps ezsp.ApsFrame, payload []byte) (uint16, error)
}

// Config holds automation settings (stub).
type Config struct {
	ExecAllowlist []string
	ExecTimeout   time.Duration
}

// ScriptMeta holds user-editable metadata for a script.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script is a single Lua hook file stored on disk.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// Manager is a no-op stub when automation is disabled.
type Manager struct{}

// NewManager returns an empty manager when automation is disabled.
func NewManager(_ string, _ *slog.Logger) (*Manager, error) { return &Manager{}, nil }

// Dir returns "".
func (m *Manager) Dir() string { return "" }

// List returns nil.
func (m *Manager) List() ([]*Script, error) { return nil, nil }

// Get returns ErrDisabled.
func (m *Manager) Get(_ string) (*Script, error) { return nil, ErrDisabled }

// Save returns ErrDisabled.
func (m *Manager) Save(_ *Script) (*Script, error) { return nil, ErrDisabled }

// Delete returns ErrDisabled.
func (m *Manager) Delete(_ string) error { return ErrDisabled }

// Engine is a no-op stub when automation is disabled.
type Engine struct {
	manager *Manager
}

// NewEngine returns a no-op engine when automation is disabled.
func NewEngine(_ Controller, mgr *Manager, _ *slog.Logger, _ Config) *Engine {
	return &Engine{manager: mgr}
}

// Manager returns the stub manager.
func (e *Engine) Manager() *Manager { return e.manager }

// Start is a no-op.
func (e *Engine) Start() {}

// Stop is a no-op.
func (e *Engine) Stop() {}

// Running returns false.
func (e *Engine) Running(_ string) bool { return false }

// ReloadScript is a no-op.
func (e *Engine) ReloadScript(_ string) error { return nil }

// StopScript is a no-op.
func (e *Engine) StopScript(_ string) {}

// RunScript returns a stub result.
func (e *Engine) RunScript(_ string) *RunResult {
	return &RunResult{OK: false, Error: ErrDisabled.Error()}
}

// RunLuaCode returns a stub result.
func (e *Engine) RunLuaCode(_ string) *RunResult {
	return &RunResult{OK: false, Error: ErrDisabled.Error()}
}
