package recorderd

import (
	"fmt"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// ReadLuaConfig evaluates a Lua configuration chunk which must return a
// table. The global arg[0] holds the file name so a configuration can
// locate files relative to itself. Numeric fields may be given as numbers
// or decimal strings.
func ReadLuaConfig(filename string, config *MinerConfig) error {
	return evalLuaConfig(filename, config, func(L *lua.LState) error {
		return L.DoFile(filename)
	})
}

// ParseLuaConfig is ReadLuaConfig for configuration text held in memory.
func ParseLuaConfig(name string, source string, config *MinerConfig) error {
	return evalLuaConfig(name, config, func(L *lua.LState) error {
		return L.DoString(source)
	})
}

func evalLuaConfig(name string, config *MinerConfig, load func(*lua.LState) error) error {
	L := lua.NewState()
	defer L.Close()

	arg := L.NewTable()
	arg.RawSetInt(0, lua.LString(name))
	L.SetGlobal("arg", arg)

	if err := load(L); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return decodeLuaConfig(L.Get(-1), config)
}

func decodeLuaConfig(v lua.LValue, config *MinerConfig) error {
	root, ok := v.(*lua.LTable)
	if !ok {
		return fmt.Errorf("%w: chunk returned %s, want table", ErrConfig, v.Type())
	}

	var err error
	config.DataDirectory = luaString(root, "data_directory")
	config.ClientPublicKey = luaString(root, "client_public_key")
	config.ClientSecretKey = luaString(root, "client_secret_key")

	if connections, ok := root.RawGetString("connections").(*lua.LTable); ok {
		config.Connections = nil
		for i := 1; i <= connections.Len(); i++ {
			t, ok := connections.RawGetInt(i).(*lua.LTable)
			if !ok {
				return fmt.Errorf("%w: connections[%d] is not a table", ErrConfig, i)
			}
			cn := ConnectionConfig{
				Enable:    luaBool(t, "enable", true),
				UseIPv4:   luaBool(t, "use_ipv4", false),
				Host:      luaString(t, "host"),
				PublicKey: luaString(t, "public_key"),
				Queue:     luaString(t, "queue"),
			}
			if cn.Number, err = luaInt(t, "number"); err != nil {
				return err
			}
			if cn.Workers, err = luaInt(t, "workers"); err != nil {
				return err
			}
			if cn.SubscribePort, err = luaInt(t, "subscribe_port"); err != nil {
				return err
			}
			if cn.RequestPort, err = luaInt(t, "request_port"); err != nil {
				return err
			}
			config.Connections = append(config.Connections, cn)
		}
	}

	if logging, ok := root.RawGetString("logging").(*lua.LTable); ok {
		lg := &config.Logging
		lg.Directory = luaString(logging, "directory")
		lg.File = luaString(logging, "file")
		lg.Console = luaBool(logging, "console", false)
		lg.Level = luaString(logging, "level")
		size, err := luaInt(logging, "size")
		if err != nil {
			return err
		}
		lg.Size = int64(size)
		if lg.Count, err = luaInt(logging, "count"); err != nil {
			return err
		}
	}

	if tracing, ok := root.RawGetString("tracing").(*lua.LTable); ok {
		config.Tracing.ServerAddress = luaString(tracing, "server_address")
		config.Tracing.Identity = luaString(tracing, "identity")
		if s := luaString(tracing, "secret"); s != "" {
			config.Tracing.Secret = []byte(s)
		}
	}
	return nil
}

func luaString(t *lua.LTable, key string) string {
	switch v := t.RawGetString(key).(type) {
	case lua.LString:
		return strings.TrimSpace(string(v))
	case lua.LNumber:
		return v.String()
	}
	return ""
}

func luaBool(t *lua.LTable, key string, def bool) bool {
	if v, ok := t.RawGetString(key).(lua.LBool); ok {
		return bool(v)
	}
	return def
}

// luaInt returns zero for an absent field so that SetDefaults applies.
func luaInt(t *lua.LTable, key string) (int, error) {
	switch v := t.RawGetString(key).(type) {
	case lua.LNumber:
		return int(v), nil
	case lua.LString:
		s := strings.TrimSpace(string(v))
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrConfig, key, err)
		}
		return n, nil
	}
	return 0, nil
}
