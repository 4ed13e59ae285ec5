//go:build !no_automation

package automation

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-ezsp-host/internal/ezsp"
)

const maxHandlersPerScript = 100

// registerEzspModule registers the `ezsp` global table in a Lua state.
func registerEzspModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return ezspOn(L, vm)
	}))
	mod.RawSetString("permit_join", L.NewFunction(func(L *lua.LState) int {
		return ezspPermitJoin(L, vm, e)
	}))
	mod.RawSetString("send_unicast", L.NewFunction(func(L *lua.LState) int {
		return ezspSend(L, vm, e, false)
	}))
	mod.RawSetString("send_broadcast", L.NewFunction(func(L *lua.LState) int {
		return ezspSend(L, vm, e, true)
	}))
	mod.RawSetString("info", L.NewFunction(func(L *lua.LState) int {
		L.Push(goToLua(L, e.ctrl.Info()))
		return 1
	}))
	mod.RawSetString("nodes", L.NewFunction(func(L *lua.LState) int {
		return ezspNodes(L, e)
	}))
	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return ezspAfter(L, vm)
	}))

	// Broadcast addresses for send_broadcast.
	mod.RawSetString("BROADCAST_ALL", lua.LNumber(ezsp.BroadcastSleepy))
	mod.RawSetString("BROADCAST_RX_ON_WHEN_IDLE", lua.LNumber(ezsp.BroadcastRxOnWhenIdle))
	mod.RawSetString("BROADCAST_ROUTERS", lua.LNumber(ezsp.BroadcastRouters))

	L.SetGlobal("ezsp", mod)
}

// ezsp.on(type, [filter], fn)
func ezspOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}
	if L.GetTop() >= 3 {
		h.filter = L.CheckTable(2)
		h.fn = L.CheckFunction(3)
	} else {
		h.fn = L.CheckFunction(2)
	}

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()
	return 0
}

func commandContext(vm *scriptVM) (context.Context, context.CancelFunc) {
	return context.WithTimeout(vm.ctx, commandTimeout)
}

// ezsp.permit_join(seconds) -> true | nil, err
func ezspPermitJoin(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckInt(1)
	if seconds < 0 || seconds > 255 {
		L.ArgError(1, "duration must be 0-255")
		return 0
	}

	ctx, cancel := commandContext(vm)
	defer cancel()
	if err := e.ctrl.PermitJoin(ctx, uint8(seconds)); err != nil {
		vm.logger.Warn("permit join", "err", err)
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// ezsp.send_unicast(node_id, aps, payload) -> tag | nil, err
// ezsp.send_broadcast(address, aps, payload) -> tag | nil, err
func ezspSend(L *lua.LState, vm *scriptVM, e *Engine, broadcast bool) int {
	dest := L.CheckInt(1)
	if dest < 0 || dest > 0xFFFF {
		L.ArgError(1, "destination must be 0-0xFFFF")
		return 0
	}
	aps := luaApsFrame(L, 2)
	payload := luaBytes(L, 3)

	ctx, cancel := commandContext(vm)
	defer cancel()

	var (
		tag uint16
		err error
	)
	if broadcast {
		tag, err = e.ctrl.SendBroadcast(ctx, uint16(dest), aps, payload)
	} else {
		tag, err = e.ctrl.SendUnicast(ctx, uint16(dest), aps, payload)
	}
	if err != nil {
		vm.logger.Warn("script send", "destination", dest, "cluster", aps.ClusterID, "err", err)
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LNumber(tag))
	return 1
}

// ezsp.nodes() -> array of node tables
func ezspNodes(L *lua.LState, e *Engine) int {
	nodes, err := e.ctrl.Nodes()
	if err != nil {
		L.Push(L.NewTable())
		return 1
	}
	tbl := L.CreateTable(len(nodes), 0)
	for i, n := range nodes {
		tbl.RawSetInt(i+1, goToLua(L, n))
	}
	L.Push(tbl)
	return 1
}

// ezsp.after(seconds, fn) runs fn on the script goroutine later.
func ezspAfter(L *lua.LState, vm *scriptVM) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		ok := vm.enqueue(func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				vm.logger.Error("after callback error", "err", err)
			}
		})
		if !ok {
			vm.logger.Warn("after: command queue full")
		}
	}()
	return 0
}
