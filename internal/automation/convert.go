//go:build !no_automation

package automation

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"zigbee-ezsp-host/internal/ezsp"
)

// goToLua converts a Go value to a Lua value. Structs become tables keyed
// by their JSON names, byte slices become arrays of numbers and types with
// a text form (EUI64, extended PAN ID, time) become strings.
func goToLua(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case []byte:
		t := L.CreateTable(len(val), 0)
		for i, b := range val {
			t.RawSetInt(i+1, lua.LNumber(b))
		}
		return t
	case encoding.TextMarshaler:
		text, err := val.MarshalText()
		if err != nil {
			return lua.LNil
		}
		return lua.LString(text)
	case map[string]interface{}:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []interface{}:
		t := L.CreateTable(len(val), 0)
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	}
	return reflectToLua(L, reflect.ValueOf(v))
}

func reflectToLua(L *lua.LState, rv reflect.Value) lua.LValue {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return lua.LNil
		}
		return goToLua(L, rv.Elem().Interface())
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Slice, reflect.Array:
		t := L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, goToLua(L, rv.Index(i).Interface()))
		}
		return t
	case reflect.Map:
		t := L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSetString(fmt.Sprint(iter.Key().Interface()), goToLua(L, iter.Value().Interface()))
		}
		return t
	case reflect.Struct:
		t := L.NewTable()
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag := f.Tag.Get("json"); tag != "" {
				tagName, _, _ := strings.Cut(tag, ",")
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			t.RawSetString(name, goToLua(L, rv.Field(i).Interface()))
		}
		return t
	}
	return lua.LString(fmt.Sprintf("%v", rv.Interface()))
}

// eventTable is the argument handlers receive: the event payload fields
// plus "event", the event type.
func eventTable(L *lua.LState, event ezsp.Event) *lua.LTable {
	t, ok := goToLua(L, event.Data).(*lua.LTable)
	if !ok {
		t = L.NewTable()
		if event.Data != nil {
			t.RawSetString("value", goToLua(L, event.Data))
		}
	}
	t.RawSetString("event", lua.LString(event.Type))
	return t
}

// matchesFilter reports whether every filter key is present in ev with an
// equal value. Keys may name nested fields, as in "aps_frame.cluster_id".
func matchesFilter(filter, ev *lua.LTable) bool {
	if filter == nil {
		return true
	}
	ok := true
	filter.ForEach(func(k, want lua.LValue) {
		if !ok {
			return
		}
		key, isString := k.(lua.LString)
		if !isString || !luaEqual(lookupField(ev, string(key)), want) {
			ok = false
		}
	})
	return ok
}

func lookupField(t *lua.LTable, path string) lua.LValue {
	var v lua.LValue = t
	for _, part := range strings.Split(path, ".") {
		tbl, ok := v.(*lua.LTable)
		if !ok {
			return lua.LNil
		}
		v = tbl.RawGetString(part)
	}
	return v
}

// luaEqual compares scalars; strings ignore case so EUI64 filters match
// in either case.
func luaEqual(a, b lua.LValue) bool {
	if as, ok := a.(lua.LString); ok {
		if bs, ok := b.(lua.LString); ok {
			return strings.EqualFold(string(as), string(bs))
		}
		return false
	}
	return a == b
}

// luaBytes reads a payload argument: a string of raw bytes or an array of
// numbers 0-255.
func luaBytes(L *lua.LState, n int) []byte {
	switch v := L.Get(n).(type) {
	case lua.LString:
		return []byte(v)
	case *lua.LTable:
		out := make([]byte, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			num, ok := v.RawGetInt(i).(lua.LNumber)
			if !ok || num < 0 || num > 255 {
				L.ArgError(n, fmt.Sprintf("payload[%d] must be a byte", i))
				return nil
			}
			out = append(out, byte(num))
		}
		return out
	case *lua.LNilType:
		return nil
	default:
		L.ArgError(n, "payload must be a string or a table of bytes")
		return nil
	}
}

// luaApsFrame reads an APS frame table:
//
//	{profile=0x0104, cluster=0x0006, src_ep=1, dst_ep=1, options=0, group=0, radius=0}
//
// Endpoints default to 1 and the profile to Home Automation.
func luaApsFrame(L *lua.LState, n int) ezsp.ApsFrame {
	t := L.CheckTable(n)
	field := func(name string, def, max int) int {
		v := t.RawGetString(name)
		if v == lua.LNil {
			return def
		}
		num, ok := v.(lua.LNumber)
		if !ok || num < 0 || int(num) > max {
			L.ArgError(n, fmt.Sprintf("%s must be a number 0-%d", name, max))
			return 0
		}
		return int(num)
	}
	if t.RawGetString("cluster") == lua.LNil {
		L.ArgError(n, "cluster is required")
	}
	return ezsp.ApsFrame{
		ProfileID:           uint16(field("profile", int(ezsp.HAProfileID), 0xFFFF)),
		ClusterID:           uint16(field("cluster", 0, 0xFFFF)),
		SourceEndpoint:      uint8(field("src_ep", 1, 0xFF)),
		DestinationEndpoint: uint8(field("dst_ep", 1, 0xFF)),
		Options:             uint16(field("options", 0, 0xFFFF)),
		GroupID:             uint16(field("group", 0, 0xFFFF)),
		Radius:              uint8(field("radius", 0, 0xFF)),
	}
}
