//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-ezsp-host/internal/coordinator"
	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

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

// Config holds automation settings.
type Config struct {
	ExecAllowlist []string      // absolute paths system.exec may run
	ExecTimeout   time.Duration // per system.exec call
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

const (
	runTimeout     = 5 * time.Second
	commandTimeout = 10 * time.Second
	commandQueue   = 64
)

// luaEventHandler is a Lua callback registered with ezsp.on.
type luaEventHandler struct {
	eventType string      // event type, "*" for all
	filter    *lua.LTable // field values the event must carry, nil for none
	fn        *lua.LFunction
}

// scriptVM is a Lua state owned by one goroutine. Everything that touches
// the state goes through commands.
type scriptVM struct {
	id       string
	state    *lua.LState
	commands chan func(*lua.LState)
	handlers []luaEventHandler
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers
}

// Engine runs hook scripts and feeds them engine events.
type Engine struct {
	ctrl    Controller
	manager *Manager
	logger  *slog.Logger
	cfg     Config

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	wg    sync.WaitGroup
	unsub func()
}

// NewEngine creates a new automation engine.
func NewEngine(ctrl Controller, mgr *Manager, logger *slog.Logger, cfg Config) *Engine {
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 10 * time.Second
	}
	return &Engine{
		ctrl:    ctrl,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		cfg:     cfg,
		vms:     make(map[string]*scriptVM),
	}
}

// Manager returns the script store the engine loads from.
func (e *Engine) Manager() *Manager { return e.manager }

// Start subscribes to the event bus and starts every enabled script.
func (e *Engine) Start() {
	e.unsub = e.ctrl.Events().OnAll(e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	running := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "scripts", running)
}

// Stop unsubscribes from the event bus and stops all scripts.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}

	e.mu.Lock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.mu.Unlock()
	e.wg.Wait()

	e.logger.Info("automation engine stopped")
}

// Running reports whether a script VM is live.
func (e *Engine) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.vms[id]
	return ok
}

// ReloadScript stops the old VM, if any, and starts the saved version.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript executes a stored script once in a throwaway VM.
func (e *Engine) RunScript(id string) *RunResult {
	start := time.Now()
	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{OK: false, Error: "script not found: " + err.Error(), Duration: time.Since(start).String()}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes code in a throwaway VM with a short deadline. The
// top-level chunk runs first, then every handler it registered is called
// once with an event table that only names the event type. Log output is
// captured in the result.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(e.ctrl.Context(), runTimeout)
	defer cancel()

	var (
		logs  []string
		logMu sync.Mutex
	)
	capture := func(level, msg string) {
		logMu.Lock()
		logs = append(logs, "["+level+"] "+msg)
		logMu.Unlock()
	}

	vm := e.newVM(ctx, cancel, "run", capture)
	defer vm.state.Close()

	result := func(err error) *RunResult {
		logMu.Lock()
		defer logMu.Unlock()
		res := &RunResult{OK: err == nil, Logs: logs, Duration: time.Since(start).String()}
		if err != nil {
			res.Error = luaError(err)
			e.logger.Warn("script run failed", "err", res.Error)
		}
		return res
	}

	if err := vm.state.DoString(code); err != nil {
		return result(err)
	}

	for _, h := range vm.snapshotHandlers() {
		ev := vm.state.NewTable()
		ev.RawSetString("event", lua.LString(h.eventType))
		if err := vm.state.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, ev); err != nil {
			return result(err)
		}
	}
	return result(nil)
}

// luaError shortens deadline errors to something a script author can act on.
func luaError(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") {
		return fmt.Sprintf("timeout (%s)", runTimeout)
	}
	return msg
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

// newVM builds a sandboxed Lua state with the script modules registered.
func (e *Engine) newVM(ctx context.Context, cancel context.CancelFunc, id string, capture func(level, msg string)) *scriptVM {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})

	// Sandbox: no file, process or code loading access.
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "loadstring", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetContext(ctx)

	vm := &scriptVM{
		id:       id,
		state:    L,
		commands: make(chan func(*lua.LState), commandQueue),
		logger:   e.logger.With("script", id),
		ctx:      ctx,
		cancel:   cancel,
	}
	registerEzspModule(L, vm, e)
	registerLogModule(L, vm.logger, capture)
	registerSystemModule(L, e)
	return vm
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(e.ctrl.Context())
	vm := e.newVM(ctx, cancel, s.ID, nil)

	if err := vm.state.DoString(s.LuaCode); err != nil {
		cancel()
		vm.state.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		old.cancel()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer vm.state.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(vm.state)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

func (vm *scriptVM) snapshotHandlers() []luaEventHandler {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	handlers := make([]luaEventHandler, len(vm.handlers))
	copy(handlers, vm.handlers)
	return handlers
}

// enqueue hands fn to the VM goroutine without blocking the caller.
func (vm *scriptVM) enqueue(fn func(*lua.LState)) bool {
	select {
	case <-vm.ctx.Done():
		return false
	default:
	}
	select {
	case vm.commands <- fn:
		return true
	default:
		return false
	}
}

// dispatchEvent runs on the engine's receive goroutine. It only queues work
// for the script goroutines, where any EZSP command a handler issues runs.
func (e *Engine) dispatchEvent(event ezsp.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		for _, h := range vm.snapshotHandlers() {
			if !matchesHandler(h, event) {
				continue
			}
			h := h
			if !vm.enqueue(func(L *lua.LState) { e.callHandler(L, vm, h, event) }) {
				vm.logger.Warn("script command queue full, dropping event", "type", event.Type)
			}
		}
	}
}

func matchesHandler(h luaEventHandler, event ezsp.Event) bool {
	return h.eventType == "*" || h.eventType == string(event.Type)
}

func (e *Engine) callHandler(L *lua.LState, vm *scriptVM, h luaEventHandler, event ezsp.Event) {
	defer func() {
		if r := recover(); r != nil {
			vm.logger.Error("lua handler panic", "err", r)
		}
	}()

	ev := eventTable(L, event)
	if !matchesFilter(h.filter, ev) {
		return
	}
	if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, ev); err != nil {
		vm.logger.Error("lua handler error", "type", event.Type, "err", err)
	}
}
