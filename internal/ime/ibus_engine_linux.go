//go:build linux

package ime

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"keybridge/internal/logging"
)

// IBus D-Bus constants
const (
	IBusFactoryPath      = dbus.ObjectPath("/org/freedesktop/IBus/Factory")
	IBusFactoryInterface = "org.freedesktop.IBus.Factory"
	IBusEngineInterface  = "org.freedesktop.IBus.Engine"
	IBusServiceInterface = "org.freedesktop.IBus.Service"

	ibusEnginePathPrefix = "/org/freedesktop/IBus/Engine/"
	ibusNoEngineError    = "org.freedesktop.IBus.NoEngine"
)

// ibusPreeditClear is the UpdatePreeditText mode that drops the preedit on
// client focus loss. FocusOut commits it through the session instead.
const ibusPreeditClear uint32 = 0

// evdevOffset converts the evdev keycodes IBus reports to X11 keycodes.
const evdevOffset = 8

// busConn is the part of *dbus.Conn the adapter uses.
type busConn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// IBusServer owns the factory object and every engine object it created.
type IBusServer struct {
	conn       busConn
	engineName string
	setup      SetupFunc
	targets    *TargetTable
	log        *logging.Logger
	crash      *logging.CrashHandler
	observer   Observer

	mu       sync.Mutex
	nextID   uint64
	contexts map[dbus.ObjectPath]*IBusEngine
}

// IBusServerOptions configures NewIBusServer.
type IBusServerOptions struct {
	// EngineName is the only name CreateEngine accepts.
	EngineName string

	// Setup builds per-context state.
	Setup SetupFunc

	Logger *logging.Logger
	Crash  *logging.CrashHandler

	// Observer, if set, is attached to every session.
	Observer Observer
}

// NewIBusServer creates a server. Nothing is exported until Register.
func NewIBusServer(conn busConn, opts IBusServerOptions) *IBusServer {
	s := &IBusServer{
		conn:       conn,
		engineName: opts.EngineName,
		setup:      opts.Setup,
		targets:    NewTargetTable(),
		log:        opts.Logger,
		crash:      opts.Crash,
		observer:   opts.Observer,
		contexts:   make(map[dbus.ObjectPath]*IBusEngine),
	}
	if s.log == nil {
		s.log = logging.Default().WithComponent("ibus")
	}
	if s.crash == nil {
		s.crash = logging.NewCrashHandler(&logging.CrashHandlerConfig{
			Component: "ibus",
			Logger:    s.log,
		})
	}
	return s
}

// Register exports the factory object.
func (s *IBusServer) Register() error {
	f := &ibusFactory{server: s}
	if err := s.conn.Export(f, IBusFactoryPath, IBusFactoryInterface); err != nil {
		return fmt.Errorf("export factory: %w", err)
	}
	node := &introspect.Node{
		Name: string(IBusFactoryPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: IBusFactoryInterface, Methods: introspect.Methods(f)},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), IBusFactoryPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export factory introspection: %w", err)
	}
	return nil
}

// Serve registers the factory on conn and claims busName.
func (s *IBusServer) Serve(conn *dbus.Conn, busName string) error {
	if err := s.Register(); err != nil {
		return err
	}
	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", busName)
	}
	s.log.Info("ibus engine started", "bus_name", busName, "engine", s.engineName)
	return nil
}

// Contexts returns the number of live input contexts.
func (s *IBusServer) Contexts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

// Close flushes every live input context. Engine objects stay exported
// until the connection closes.
func (s *IBusServer) Close() {
	s.mu.Lock()
	engines := make([]*IBusEngine, 0, len(s.contexts))
	for _, e := range s.contexts {
		engines = append(engines, e)
	}
	s.mu.Unlock()

	for _, e := range engines {
		e.Reset()
	}
}

func (s *IBusServer) createEngine(name string) (dbus.ObjectPath, *dbus.Error) {
	if name != s.engineName {
		s.log.Warn("CreateEngine for unknown engine", "engine", name)
		return "", dbus.NewError(ibusNoEngineError, []interface{}{"unknown engine: " + name})
	}

	setup, err := s.setup()
	if err != nil {
		s.log.Error("input context setup failed", "error", err)
		return "", dbus.MakeFailedError(err)
	}

	s.mu.Lock()
	s.nextID++
	path := dbus.ObjectPath(fmt.Sprintf("%s%d", ibusEnginePathPrefix, s.nextID))
	s.mu.Unlock()

	log := s.log.WithInputContext(string(path))
	target := &ibusContext{path: path, conn: s.conn, log: log}
	id := s.targets.Register(target)

	e := &IBusEngine{
		path:   path,
		server: s,
		id:     id,
		log:    log,
		session: NewSession(setup.Engine, setup.Layout, s.targets,
			WithModifierMasks(IBusModifierMasks),
			WithAttributes(setup.Attrs),
			WithLogger(log),
			WithObserver(s.observer),
		),
	}

	if err := s.conn.Export(e, path, IBusEngineInterface); err != nil {
		s.targets.Unregister(id)
		return "", dbus.MakeFailedError(err)
	}
	if err := s.conn.Export(e, path, IBusServiceInterface); err != nil {
		s.conn.Export(nil, path, IBusEngineInterface)
		s.targets.Unregister(id)
		return "", dbus.MakeFailedError(err)
	}

	s.mu.Lock()
	s.contexts[path] = e
	s.mu.Unlock()

	log.Debug("engine created")
	return path, nil
}

func (s *IBusServer) destroy(e *IBusEngine) {
	s.mu.Lock()
	delete(s.contexts, e.path)
	s.mu.Unlock()

	s.targets.Unregister(e.id)
	s.conn.Export(nil, e.path, IBusEngineInterface)
	s.conn.Export(nil, e.path, IBusServiceInterface)
}

// ibusFactory is exported at IBusFactoryPath.
type ibusFactory struct {
	server *IBusServer
}

// CreateEngine implements org.freedesktop.IBus.Factory.CreateEngine.
func (f *ibusFactory) CreateEngine(name string) (dbus.ObjectPath, *dbus.Error) {
	return f.server.createEngine(name)
}

// IBusEngine is the D-Bus object for one input context. godbus may deliver
// calls on several goroutines, so every method holds mu while it touches
// the session.
type IBusEngine struct {
	path   dbus.ObjectPath
	server *IBusServer
	id     FocusID
	log    *logging.Logger

	mu      sync.Mutex
	session *Session
}

// guard runs fn under the engine lock and turns a panic into a crash report.
func (e *IBusEngine) guard(op string, fn func()) {
	e.server.crash.Recover(map[string]string{
		"op":            op,
		"input_context": string(e.path),
	}, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		fn()
	})
}

// ProcessKeyEvent reports whether the key was consumed.
func (e *IBusEngine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	ev := RawKeyEvent{
		Kind:     EventKeyPress,
		ScanCode: uint16(keycode + evdevOffset),
		State:    state,
	}
	if state&IBusReleaseMask != 0 {
		ev.Kind = EventKeyRelease
	}

	var consumed bool
	e.guard("ProcessKeyEvent", func() {
		consumed = e.session.FilterEvent(ev)
	})
	return consumed, nil
}

// FocusIn is called when the input context gains focus.
func (e *IBusEngine) FocusIn() *dbus.Error {
	e.guard("FocusIn", func() { e.session.SetFocus(e.id) })
	return nil
}

// FocusOut flushes the composition into the context being left.
func (e *IBusEngine) FocusOut() *dbus.Error {
	e.guard("FocusOut", func() { e.session.SetFocus(NoFocus) })
	return nil
}

// Reset commits any pending composition.
func (e *IBusEngine) Reset() *dbus.Error {
	e.guard("Reset", func() { e.session.Reset() })
	return nil
}

// Enable is called when the user switches to this engine.
func (e *IBusEngine) Enable() *dbus.Error {
	e.log.Debug("enable")
	return nil
}

// Disable is called when the user switches away from this engine.
func (e *IBusEngine) Disable() *dbus.Error {
	e.guard("Disable", func() { e.session.Reset() })
	return nil
}

// Destroy implements org.freedesktop.IBus.Service.Destroy.
func (e *IBusEngine) Destroy() *dbus.Error {
	e.guard("Destroy", func() { e.session.Reset() })
	e.server.destroy(e)
	e.log.Debug("engine destroyed")
	return nil
}

// SetCapabilities informs about client capabilities.
func (e *IBusEngine) SetCapabilities(caps uint32) *dbus.Error {
	e.log.Debug("capabilities", "caps", caps)
	return nil
}

// SetContentType informs about the type of content being edited.
func (e *IBusEngine) SetContentType(purpose, hints uint32) *dbus.Error {
	e.log.Debug("content type", "purpose", purpose, "hints", hints)
	return nil
}

// SetCursorLocation informs about cursor position.
func (e *IBusEngine) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	return nil
}

// SetSurroundingText provides context around the cursor. It is not used.
func (e *IBusEngine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	return nil
}

// PropertyActivate handles property activations.
func (e *IBusEngine) PropertyActivate(name string, state uint32) *dbus.Error {
	return nil
}

// PageUp handles page up in candidate list.
func (e *IBusEngine) PageUp() *dbus.Error { return nil }

// PageDown handles page down in candidate list.
func (e *IBusEngine) PageDown() *dbus.Error { return nil }

// CursorUp handles cursor up in candidate list.
func (e *IBusEngine) CursorUp() *dbus.Error { return nil }

// CursorDown handles cursor down in candidate list.
func (e *IBusEngine) CursorDown() *dbus.Error { return nil }

// CandidateClicked handles candidate selection.
func (e *IBusEngine) CandidateClicked(index, button, state uint32) *dbus.Error { return nil }

// ibusContext is the FocusTarget for one engine object. It is kept apart
// from IBusEngine so its methods never appear on the bus.
type ibusContext struct {
	path dbus.ObjectPath
	conn busConn
	log  *logging.Logger

	preeditVisible bool
}

func (c *ibusContext) NotifyCommit(text string) {
	if c.preeditVisible {
		c.emit("UpdatePreeditText", dbus.MakeVariant(newIBusText("", nil)), uint32(0), false, ibusPreeditClear)
		c.preeditVisible = false
	}
	if text == "" {
		return
	}
	c.emit("CommitText", dbus.MakeVariant(newIBusText(text, nil)))
}

func (c *ibusContext) NotifyPreview(text string, attrs Attributes) {
	cursor := uint32(utf8.RuneCountInString(text))
	c.emit("UpdatePreeditText", dbus.MakeVariant(newIBusText(text, attrs)), cursor, true, ibusPreeditClear)
	c.preeditVisible = true
}

func (c *ibusContext) emit(signal string, values ...interface{}) {
	if err := c.conn.Emit(c.path, IBusEngineInterface+"."+signal, values...); err != nil {
		c.log.Warn("emit signal failed", "signal", signal, "error", err)
	}
}

// IBus serializable objects. Field order defines the D-Bus signature.

// ibusText has signature (sa{sv}sv).
type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	AttrList    dbus.Variant
}

// ibusAttrList has signature (sa{sv}av).
type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

// ibusAttribute has signature (sa{sv}uuuu).
type ibusAttribute struct {
	Name        string
	Attachments map[string]dbus.Variant
	Type        uint32
	Value       uint32
	StartIndex  uint32
	EndIndex    uint32
}

func newIBusText(text string, attrs Attributes) ibusText {
	end := uint32(utf8.RuneCountInString(text))
	list := ibusAttrList{
		Name:        "IBusAttrList",
		Attachments: map[string]dbus.Variant{},
		Attributes:  make([]dbus.Variant, 0, len(attrs)),
	}
	for _, a := range attrs {
		list.Attributes = append(list.Attributes, dbus.MakeVariant(ibusAttribute{
			Name:        "IBusAttribute",
			Attachments: map[string]dbus.Variant{},
			Type:        uint32(a.Kind),
			Value:       a.Value,
			StartIndex:  0,
			EndIndex:    end,
		}))
	}
	return ibusText{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        text,
		AttrList:    dbus.MakeVariant(list),
	}
}

// IBusAddress finds the ibus-daemon bus address: IBUS_ADDRESS if set,
// otherwise the address file ibus-daemon writes for this display.
func IBusAddress() (string, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return addr, nil
	}

	machineID, err := readMachineID()
	if err != nil {
		return "", err
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate config home: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}

	name := ibusSocketName(machineID, os.Getenv("DISPLAY"), os.Getenv("WAYLAND_DISPLAY"))
	path := filepath.Join(configHome, "ibus", "bus", name)

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open ibus address file: %w", err)
	}
	defer f.Close()

	addr, err := parseIBusAddressFile(bufio.NewScanner(f))
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return addr, nil
}

func readMachineID() (string, error) {
	for _, p := range []string{"/var/lib/dbus/machine-id", "/etc/machine-id"} {
		data, err := os.ReadFile(p)
		if err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id, nil
			}
		}
	}
	return "", errors.New("machine id not found")
}

// ibusSocketName builds "<machine-id>-<host>-<display>" the way
// ibus-daemon names its address file.
func ibusSocketName(machineID, display, wayland string) string {
	if wayland != "" {
		return fmt.Sprintf("%s-unix-%s", machineID, wayland)
	}
	host, number := "unix", "0"
	if display != "" {
		h, rest, ok := strings.Cut(display, ":")
		if ok {
			if h != "" {
				host = h
			}
			number, _, _ = strings.Cut(rest, ".")
		}
	}
	return fmt.Sprintf("%s-%s-%s", machineID, host, number)
}

// parseIBusAddressFile extracts IBUS_ADDRESS from an address file.
func parseIBusAddressFile(sc *bufio.Scanner) (string, error) {
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if v, ok := strings.CutPrefix(line, "IBUS_ADDRESS="); ok && v != "" {
			return v, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", errors.New("no IBUS_ADDRESS entry")
}

// ConnectIBus connects to ibus-daemon. An empty addr is resolved with
// IBusAddress; if that fails the session bus is used instead.
func ConnectIBus(addr string, log *logging.Logger) (*dbus.Conn, error) {
	if addr == "" {
		var err error
		addr, err = IBusAddress()
		if err != nil {
			log.Warn("ibus address not found, using session bus", "error", err)
			conn, err := dbus.ConnectSessionBus()
			if err != nil {
				return nil, fmt.Errorf("connect session bus: %w", err)
			}
			return conn, nil
		}
	}

	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return conn, nil
}
