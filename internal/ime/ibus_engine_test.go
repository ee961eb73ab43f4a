//go:build linux

package ime

import (
	"bufio"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybridge/internal/logging"
)

type emitted struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

// fakeConn records exports and emitted signals.
type fakeConn struct {
	mu      sync.Mutex
	exports map[string]interface{}
	signals []emitted
	failOn  string
}

func newFakeConn() *fakeConn {
	return &fakeConn{exports: make(map[string]interface{})}
}

func (c *fakeConn) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if iface == c.failOn {
		return errors.New("export refused")
	}
	key := string(path) + " " + iface
	if v == nil {
		delete(c.exports, key)
		return nil
	}
	c.exports[key] = v
	return nil
}

func (c *fakeConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, emitted{path, name, values})
	return nil
}

func (c *fakeConn) exported(path dbus.ObjectPath, iface string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.exports[string(path)+" "+iface]
	return ok
}

// events renders the recorded signals as "commit:x" / "preedit:x" /
// "hide" strings.
func (c *fakeConn) events(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, s := range c.signals {
		text, ok := s.values[0].(dbus.Variant).Value().(ibusText)
		require.True(t, ok, "signal %s carries %T", s.name, s.values[0])
		switch s.name {
		case IBusEngineInterface + ".CommitText":
			out = append(out, "commit:"+text.Text)
		case IBusEngineInterface + ".UpdatePreeditText":
			if visible := s.values[2].(bool); visible {
				out = append(out, "preedit:"+text.Text)
			} else {
				out = append(out, "hide")
			}
		default:
			t.Fatalf("unexpected signal %s", s.name)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = nil
}

func newTestServer(t *testing.T, eng Engine) (*IBusServer, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	log := logging.Discard()
	s := NewIBusServer(conn, IBusServerOptions{
		EngineName: "keybridge",
		Setup: func() (ContextSetup, error) {
			return ContextSetup{Engine: eng, Attrs: Attributes{{Kind: AttrUnderline, Value: UnderlineSingle}}}, nil
		},
		Logger: log,
		Crash: logging.NewCrashHandler(&logging.CrashHandlerConfig{
			CrashDir:  t.TempDir(),
			Component: "ibus-test",
			Logger:    log,
		}),
	})
	require.NoError(t, s.Register())
	return s, conn
}

func createEngine(t *testing.T, s *IBusServer) *IBusEngine {
	t.Helper()
	path, derr := s.createEngine("keybridge")
	require.Nil(t, derr)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.contexts[path]
	require.True(t, ok)
	return e
}

func TestIBusTextSignature(t *testing.T) {
	text := newIBusText("é", Attributes{{Kind: AttrUnderline, Value: UnderlineSingle}})

	assert.Equal(t, "(sa{sv}sv)", dbus.SignatureOf(text).String())
	assert.Equal(t, "IBusText", text.Name)
	assert.Equal(t, "é", text.Text)

	list, ok := text.AttrList.Value().(ibusAttrList)
	require.True(t, ok)
	assert.Equal(t, "(sa{sv}av)", dbus.SignatureOf(list).String())
	require.Len(t, list.Attributes, 1)

	attr, ok := list.Attributes[0].Value().(ibusAttribute)
	require.True(t, ok)
	assert.Equal(t, "(sa{sv}uuuu)", dbus.SignatureOf(attr).String())
	assert.Equal(t, uint32(AttrUnderline), attr.Type)
	assert.Equal(t, UnderlineSingle, attr.Value)
	assert.Equal(t, uint32(0), attr.StartIndex)
	assert.Equal(t, uint32(1), attr.EndIndex, "end index counts runes, not bytes")
}

func TestIBusTextWithoutAttributes(t *testing.T) {
	text := newIBusText("", nil)
	list := text.AttrList.Value().(ibusAttrList)
	assert.Empty(t, list.Attributes)
	assert.NotNil(t, list.Attributes)
}

func TestRegisterExportsFactory(t *testing.T) {
	_, conn := newTestServer(t, &recordingEngine{})
	assert.True(t, conn.exported(IBusFactoryPath, IBusFactoryInterface))
	assert.True(t, conn.exported(IBusFactoryPath, "org.freedesktop.DBus.Introspectable"))
}

func TestCreateEngine(t *testing.T) {
	s, conn := newTestServer(t, &recordingEngine{})

	f := &ibusFactory{server: s}
	p1, derr := f.CreateEngine("keybridge")
	require.Nil(t, derr)
	p2, derr := f.CreateEngine("keybridge")
	require.Nil(t, derr)

	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/IBus/Engine/1"), p1)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/IBus/Engine/2"), p2)
	assert.True(t, conn.exported(p1, IBusEngineInterface))
	assert.True(t, conn.exported(p1, IBusServiceInterface))
	assert.Equal(t, 2, s.Contexts())
	assert.Equal(t, 2, s.targets.Len())
}

func TestCreateEngineUnknownName(t *testing.T) {
	s, _ := newTestServer(t, &recordingEngine{})

	_, derr := s.createEngine("anthy")
	require.NotNil(t, derr)
	assert.Equal(t, ibusNoEngineError, derr.Name)
	assert.Equal(t, 0, s.Contexts())
}

func TestCreateEngineSetupError(t *testing.T) {
	conn := newFakeConn()
	s := NewIBusServer(conn, IBusServerOptions{
		EngineName: "keybridge",
		Setup:      func() (ContextSetup, error) { return ContextSetup{}, errors.New("bad layout") },
		Logger:     logging.Discard(),
	})

	_, derr := s.createEngine("keybridge")
	require.NotNil(t, derr)
	assert.Equal(t, 0, s.Contexts())
}

func TestCreateEngineExportFailure(t *testing.T) {
	s, conn := newTestServer(t, &recordingEngine{})
	conn.failOn = IBusServiceInterface

	_, derr := s.createEngine("keybridge")
	require.NotNil(t, derr)
	assert.Equal(t, 0, s.Contexts())
	assert.Equal(t, 0, s.targets.Len())
	assert.False(t, conn.exported("/org/freedesktop/IBus/Engine/1", IBusEngineInterface))
}

func TestProcessKeyEvent(t *testing.T) {
	eng := &recordingEngine{results: []Result{
		Preedit{Char: '\''},
		Commit{Char: 'é'},
	}}
	s, conn := newTestServer(t, eng)
	e := createEngine(t, s)
	require.Nil(t, e.FocusIn())

	consumed, derr := e.ProcessKeyEvent('\'', 40, 0)
	require.Nil(t, derr)
	assert.True(t, consumed)

	consumed, _ = e.ProcessKeyEvent('e', 18, IBusShiftMask|IBusLockMask)
	assert.True(t, consumed)

	assert.Equal(t, []uint16{48, 26}, eng.codes, "evdev keycodes are shifted to X11 numbering")
	assert.Equal(t, []ModifierFlags{0, ModShift}, eng.mods)
	assert.Equal(t, []string{"preedit:'", "hide", "commit:é"}, conn.events(t))
}

func TestProcessKeyEventPreeditCursor(t *testing.T) {
	eng := &recordingEngine{results: []Result{Preedit{Char: '¨'}}}
	s, conn := newTestServer(t, eng)
	e := createEngine(t, s)
	e.FocusIn()

	e.ProcessKeyEvent(0, 40, 0)

	require.Len(t, conn.signals, 1)
	sig := conn.signals[0]
	assert.Equal(t, e.path, sig.path)
	assert.Equal(t, uint32(1), sig.values[1], "cursor sits after the preedit")
	assert.Equal(t, true, sig.values[2])
	assert.Equal(t, ibusPreeditClear, sig.values[3])
}

func TestProcessKeyEventRelease(t *testing.T) {
	eng := &recordingEngine{results: []Result{Commit{Char: 'a'}}}
	s, conn := newTestServer(t, eng)
	e := createEngine(t, s)
	e.FocusIn()

	consumed, derr := e.ProcessKeyEvent('a', 30, IBusReleaseMask)
	require.Nil(t, derr)
	assert.False(t, consumed)
	assert.Empty(t, eng.codes)
	assert.Empty(t, conn.events(t))
}

func TestProcessKeyEventModifiers(t *testing.T) {
	tests := []struct {
		state uint32
		want  ModifierFlags
	}{
		{0, 0},
		{IBusControlMask, ModControl},
		{IBusMod1Mask, 0},
		{IBusMod4Mask, ModSuper},
		{IBusSuperMask, ModSuper},
		{IBusMetaMask, ModSuper},
		{IBusShiftMask | IBusControlMask | IBusMod4Mask, ModShift | ModControl | ModSuper},
		{IBusHyperMask | IBusLockMask, 0},
	}
	for _, tt := range tests {
		eng := &recordingEngine{}
		s, _ := newTestServer(t, eng)
		e := createEngine(t, s)

		consumed, _ := e.ProcessKeyEvent(0, 30, tt.state)
		assert.False(t, consumed)
		require.Len(t, eng.mods, 1)
		assert.Equal(t, tt.want, eng.mods[0], "state %#x", tt.state)
	}
}

func TestProcessKeyEventWithoutFocus(t *testing.T) {
	eng := &recordingEngine{results: []Result{Commit{Char: 'a'}}}
	s, conn := newTestServer(t, eng)
	e := createEngine(t, s)

	consumed, _ := e.ProcessKeyEvent('a', 30, 0)
	assert.True(t, consumed)
	assert.Empty(t, conn.events(t))
}

func TestProcessKeyEventRecoversPanic(t *testing.T) {
	eng := &recordingEngine{panics: true}
	s, _ := newTestServer(t, eng)
	e := createEngine(t, s)
	e.FocusIn()

	consumed, derr := e.ProcessKeyEvent('a', 30, 0)
	assert.Nil(t, derr)
	assert.False(t, consumed)

	// The lock is released, so the context keeps working.
	eng.panics = false
	consumed, _ = e.ProcessKeyEvent('a', 30, 0)
	assert.False(t, consumed)
}

func TestFocusOutFlushes(t *testing.T) {
	eng := &recordingEngine{results: []Result{Preedit{Char: '\''}}}
	s, conn := newTestServer(t, eng)
	e := createEngine(t, s)
	e.FocusIn()

	e.ProcessKeyEvent('\'', 40, 0)
	eng.pending = '\''
	conn.reset()

	require.Nil(t, e.FocusOut())
	assert.Equal(t, []string{"hide", "commit:'"}, conn.events(t))
	assert.Equal(t, NoFocus, e.session.Focus())

	// Nothing pending: a second blur emits nothing.
	conn.reset()
	e.FocusOut()
	assert.Empty(t, conn.events(t))
}

func TestClearPreeditHides(t *testing.T) {
	eng := &recordingEngine{results: []Result{Preedit{Char: '`'}, ClearPreedit{}}}
	s, conn := newTestServer(t, eng)
	e := createEngine(t, s)
	e.FocusIn()

	e.ProcessKeyEvent(0, 41, 0)
	consumed, _ := e.ProcessKeyEvent(0, 1, 0)
	assert.True(t, consumed)
	assert.Equal(t, []string{"preedit:`", "hide"}, conn.events(t))
}

func TestResetAndDisableCommitPending(t *testing.T) {
	eng := &recordingEngine{}
	s, conn := newTestServer(t, eng)
	e := createEngine(t, s)
	e.FocusIn()

	eng.pending = '~'
	require.Nil(t, e.Reset())
	eng.pending = '^'
	require.Nil(t, e.Disable())

	assert.Equal(t, []string{"commit:~", "commit:^"}, conn.events(t))
	assert.Equal(t, e.id, e.session.Focus(), "reset keeps focus")
}

func TestDestroy(t *testing.T) {
	eng := &recordingEngine{}
	s, conn := newTestServer(t, eng)
	e := createEngine(t, s)
	e.FocusIn()
	eng.pending = '\''

	require.Nil(t, e.Destroy())

	assert.Equal(t, []string{"commit:'"}, conn.events(t))
	assert.Equal(t, 0, s.Contexts())
	assert.Equal(t, 0, s.targets.Len())
	assert.False(t, conn.exported(e.path, IBusEngineInterface))
	assert.False(t, conn.exported(e.path, IBusServiceInterface))
}

func TestServerClose(t *testing.T) {
	eng := &recordingEngine{}
	s, conn := newTestServer(t, eng)
	e := createEngine(t, s)
	e.FocusIn()
	eng.pending = 'x'

	s.Close()
	assert.Equal(t, []string{"commit:x"}, conn.events(t))
}

func TestNoopMethods(t *testing.T) {
	s, conn := newTestServer(t, &recordingEngine{})
	e := createEngine(t, s)

	assert.Nil(t, e.Enable())
	assert.Nil(t, e.SetCapabilities(8))
	assert.Nil(t, e.SetContentType(0, 0))
	assert.Nil(t, e.SetCursorLocation(1, 2, 3, 4))
	assert.Nil(t, e.SetSurroundingText(dbus.MakeVariant(newIBusText("abc", nil)), 1, 1))
	assert.Nil(t, e.PropertyActivate("mode", 1))
	assert.Nil(t, e.PageUp())
	assert.Nil(t, e.PageDown())
	assert.Nil(t, e.CursorUp())
	assert.Nil(t, e.CursorDown())
	assert.Nil(t, e.CandidateClicked(0, 1, 0))
	assert.Empty(t, conn.events(t))
}

func TestIBusSocketName(t *testing.T) {
	tests := []struct {
		display, wayland string
		want             string
	}{
		{":0", "", "abc-unix-0"},
		{":1.0", "", "abc-unix-1"},
		{"localhost:10.0", "", "abc-localhost-10"},
		{"", "", "abc-unix-0"},
		{":0", "wayland-0", "abc-unix-wayland-0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ibusSocketName("abc", tt.display, tt.wayland),
			"DISPLAY=%q WAYLAND_DISPLAY=%q", tt.display, tt.wayland)
	}
}

func TestParseIBusAddressFile(t *testing.T) {
	file := `# This file is created by ibus-daemon, please do not modify it.
# This file allows processes on the machine to find the
# ibus session bus with the below address.
# If the IBUS_ADDRESS environment variable is set, it will
# be used rather than this file.
IBUS_ADDRESS=unix:path=/home/u/.cache/ibus/dbus-XYZ,guid=0123
IBUS_DAEMON_PID=4242
`
	addr, err := parseIBusAddressFile(bufio.NewScanner(strings.NewReader(file)))
	require.NoError(t, err)
	assert.Equal(t, "unix:path=/home/u/.cache/ibus/dbus-XYZ,guid=0123", addr)

	_, err = parseIBusAddressFile(bufio.NewScanner(strings.NewReader("# empty\nIBUS_DAEMON_PID=1\n")))
	assert.Error(t, err)
}

func TestIBusAddressFromEnv(t *testing.T) {
	t.Setenv("IBUS_ADDRESS", "unix:path=/tmp/ibus-test")
	addr, err := IBusAddress()
	require.NoError(t, err)
	assert.Equal(t, "unix:path=/tmp/ibus-test", addr)
}
