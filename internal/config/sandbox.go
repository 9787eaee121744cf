package config

import (
	"context"

	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed from every config VM. They could:
// - Execute system commands (os.execute, os.exit)
// - Access the filesystem (io.open, io.popen)
// - Load external code (require, dofile, loadfile, load, loadstring)
// - Bypass the read-only platform table (rawset, setmetatable, debug)
var blockedGlobals = []string{
	"os", "io", "debug",
	"require", "dofile", "loadfile", "load", "loadstring",
	"rawset", "rawget", "setmetatable", "getmetatable", "setfenv", "getfenv",
	"collectgarbage",
}

// sandboxLuaVM configures a Lua VM to run in a restricted sandbox.
// string, table and math plus the basic functions (type, tostring,
// tonumber, pairs, ipairs) stay available so configs can compute values.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a new Lua VM with sandboxing applied. Execution
// is aborted when ctx is done.
func newSandboxedVM(ctx context.Context) *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize:       256,
		RegistrySize:        1024 * 8,
		IncludeGoStackTrace: false,
	})
	sandboxLuaVM(L)
	if ctx != nil {
		L.SetContext(ctx)
	}
	return L
}
