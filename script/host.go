// Package script hosts the user's Lua transform. A script defines
//
//	function transform(status, note, velocity)
//	  return status, note, velocity
//	end
//
// and is called once per incoming event. Each load gets a fresh interpreter.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	"pianomirror/debug"
)

// EntryPoint is the global function called for every event
const EntryPoint = "transform"

var (
	// ErrScript wraps a Lua runtime error raised by the entry point
	ErrScript = errors.New("script: runtime error")
	// ErrBadResult means the entry point didn't return exactly three numbers
	ErrBadResult = errors.New("script: transform must return three numbers")
	// ErrNoEntryPoint means the script defines no transform function
	ErrNoEntryPoint = errors.New("script: no transform function")
	// ErrNotLoaded is returned when no script is loaded
	ErrNotLoaded = errors.New("script: no script loaded")

	errClosed = errors.New("script: handle closed")
)

// Time limits for running Lua code
var (
	LoadTimeout   = 2 * time.Second
	InvokeTimeout = 10 * time.Millisecond
)

// Handle is one loaded script and its interpreter
type Handle struct {
	Path    string
	ModTime time.Time

	mu     sync.Mutex // guards L; invoke and close never overlap
	L      *lua.LState
	warned bool
	closed bool
}

// compile runs path in a fresh interpreter
func compile(path string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	L := lua.NewState()
	ctx, cancel := context.WithTimeout(context.Background(), LoadTimeout)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("load script %s: %w", path, err)
	}
	L.RemoveContext()

	return &Handle{Path: path, ModTime: info.ModTime(), L: L}, nil
}

// HasEntryPoint reports whether the script defines transform
func (h *Handle) HasEntryPoint() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	return h.L.GetGlobal(EntryPoint).Type() == lua.LTFunction
}

func (h *Handle) invoke(status, note, vel uint8) (uint8, uint8, uint8, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return status, note, vel, errClosed
	}

	fn := h.L.GetGlobal(EntryPoint)
	if fn.Type() != lua.LTFunction {
		// pass-through; only complain once per load
		if h.warned {
			return status, note, vel, nil
		}
		h.warned = true
		return status, note, vel, ErrNoEntryPoint
	}

	ctx, cancel := context.WithTimeout(context.Background(), InvokeTimeout)
	defer cancel()
	h.L.SetContext(ctx)
	defer h.L.RemoveContext()

	base := h.L.GetTop()
	defer h.L.SetTop(base)

	err := h.L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true},
		lua.LNumber(status), lua.LNumber(note), lua.LNumber(vel))
	if err != nil {
		return status, note, vel, fmt.Errorf("%w: %v", ErrScript, err)
	}

	n := h.L.GetTop() - base
	if n != 3 {
		return status, note, vel, fmt.Errorf("%w: got %d values", ErrBadResult, n)
	}

	var out [3]int
	for i := range out {
		v, ok := h.L.Get(base + 1 + i).(lua.LNumber)
		if !ok {
			return status, note, vel, fmt.Errorf("%w: value %d is %s", ErrBadResult, i+1, h.L.Get(base+1+i).Type())
		}
		out[i] = int(v)
	}

	return clamp(out[0], 0x80, 0xEF), clamp(out[1], 0, 127), clamp(out[2], 0, 127), nil
}

func (h *Handle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.L.Close()
}

func clamp(v, lo, hi int) uint8 {
	if v < lo {
		return uint8(lo)
	}
	if v > hi {
		return uint8(hi)
	}
	return uint8(v)
}

// Host owns the current script. Loads compile a new handle before swapping
// it in, so a broken edit never leaves the loop without a transform.
type Host struct {
	current atomic.Pointer[Handle]
	mu      sync.Mutex // serialises Load/Unload
	log     *slog.Logger
}

// NewHost returns a host with nothing loaded
func NewHost(logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{log: logger}
}

// Load compiles path and makes it current. On error the previous script
// stays active.
func (h *Host) Load(path string) (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	nh, err := compile(path)
	if err != nil {
		return nil, err
	}
	if !nh.HasEntryPoint() {
		h.log.Warn("script has no transform function, events pass through", "path", path)
	}

	old := h.current.Swap(nh)
	if old != nil {
		old.close()
	}
	debug.Log("script", "loaded %s (modified %s)", path, nh.ModTime.Format(time.RFC3339))
	return nh, nil
}

// Reload loads the current script's path again
func (h *Host) Reload() (*Handle, error) {
	cur := h.current.Load()
	if cur == nil {
		return nil, ErrNotLoaded
	}
	return h.Load(cur.Path)
}

// Unload drops the current script
func (h *Host) Unload() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old := h.current.Swap(nil); old != nil {
		old.close()
		debug.Log("script", "unloaded %s", old.Path)
	}
}

// Close releases the interpreter
func (h *Host) Close() {
	h.Unload()
}

// Current returns the loaded handle or nil
func (h *Host) Current() *Handle {
	return h.current.Load()
}

// Loaded reports whether a script is active
func (h *Host) Loaded() bool {
	return h.current.Load() != nil
}

// Invoke runs the current script's transform on one event. On any error
// the input values come back unchanged.
func (h *Host) Invoke(status, note, vel uint8) (uint8, uint8, uint8, error) {
	for {
		cur := h.current.Load()
		if cur == nil {
			return status, note, vel, ErrNotLoaded
		}
		s, n, v, err := cur.invoke(status, note, vel)
		if errors.Is(err, errClosed) {
			// swapped out under us; use the new one
			continue
		}
		return s, n, v, err
	}
}
