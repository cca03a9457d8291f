//go:build linux

package hotkey

/*
#cgo pkg-config: x11 xtst
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <X11/extensions/XTest.h>
#include <stdlib.h>

Display* displayPtr = NULL;

int keycodeForName(const char* name) {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    if (displayPtr == NULL) return 0;

    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

int grabKey(int keycode, int modifiers) {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    if (displayPtr == NULL) return 0;

    Window root = DefaultRootWindow(displayPtr);
    XGrabKey(displayPtr, keycode, modifiers, root, False, GrabModeAsync, GrabModeAsync);
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return 1;
}

void ungrabKey(int keycode, int modifiers) {
    if (displayPtr == NULL) return;
    Window root = DefaultRootWindow(displayPtr);
    XUngrabKey(displayPtr, keycode, modifiers, root);
    XSync(displayPtr, False);
}

int checkEvent(int* keycode, int* pressed) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    if (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress || event.type == KeyRelease) {
            *keycode = event.xkey.keycode;
            *pressed = (event.type == KeyPress) ? 1 : 0;
            return 1;
        }
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"strings"
	"time"
	"unsafe"
)

// X11 modifier masks
const (
	shiftMask = 1 << 0
	ctrlMask  = 1 << 2
	mod1Mask  = 1 << 3 // Alt
	mod4Mask  = 1 << 6 // Super
)

type binding struct {
	keycode   int
	modifiers int
	callback  func(bool)
}

type linuxManager struct {
	bindings map[string]binding
	stop     chan struct{}
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	mgr := &linuxManager{
		bindings: make(map[string]binding),
		stop:     make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

// keysymName maps a parsed key to an X keysym name. Letters and "space" pass
// through; function keys need their capital form.
func keysymName(key string) string {
	if len(key) > 1 && key[0] == 'f' {
		return "F" + key[1:]
	}
	return key
}

func (m *linuxManager) Register(accelStr string, callback func(pressed bool)) error {
	a, err := parseAccel(accelStr)
	if err != nil {
		return err
	}

	name := C.CString(keysymName(a.key))
	defer C.free(unsafe.Pointer(name))
	keycode := int(C.keycodeForName(name))
	if keycode == 0 {
		return fmt.Errorf("no keycode for key %q", a.key)
	}

	modifiers := 0
	if a.shift {
		modifiers |= shiftMask
	}
	if a.ctrl {
		modifiers |= ctrlMask
	}
	if a.alt {
		modifiers |= mod1Mask
	}
	if a.cmd {
		modifiers |= mod4Mask
	}

	if C.grabKey(C.int(keycode), C.int(modifiers)) == 0 {
		return fmt.Errorf("failed to grab %s", accelStr)
	}

	m.bindings[strings.ToLower(accelStr)] = binding{
		keycode:   keycode,
		modifiers: modifiers,
		callback:  callback,
	}
	return nil
}

func (m *linuxManager) eventLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var keycode, pressed C.int
			if C.checkEvent(&keycode, &pressed) != 0 {
				for _, b := range m.bindings {
					if b.keycode == int(keycode) {
						b.callback(pressed == 1)
					}
				}
			}
		}
	}
}

func (m *linuxManager) Unregister(accelStr string) error {
	key := strings.ToLower(accelStr)
	b, ok := m.bindings[key]
	if !ok {
		return nil
	}
	C.ungrabKey(C.int(b.keycode), C.int(b.modifiers))
	delete(m.bindings, key)
	return nil
}

func (m *linuxManager) Close() error {
	close(m.stop)
	return nil
}
