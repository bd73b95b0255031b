package console

import (
	"errors"
	"log"
	"os"
	"testing"
)

type fakeController struct {
	startCalls    int
	stopCalls     int
	statusText    string
	shutdownCalls int
	startErr      error
}

func (f *fakeController) StartManualRecording() error {
	f.startCalls++
	return f.startErr
}
func (f *fakeController) StopManualRecording() error {
	f.stopCalls++
	return nil
}
func (f *fakeController) Status() string    { return f.statusText }
func (f *fakeController) RequestShutdown()  { f.shutdownCalls++ }

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST: ", log.LstdFlags)
}

func TestHandleKeyPressDispatchesStart(t *testing.T) {
	fc := &fakeController{statusText: "idle"}
	c := New(fc, testLogger())

	c.handleKeyPress('r')

	if fc.startCalls != 1 {
		t.Errorf("expected StartManualRecording to be called once, got %d", fc.startCalls)
	}
}

func TestHandleKeyPressDispatchesStop(t *testing.T) {
	fc := &fakeController{}
	c := New(fc, testLogger())

	c.handleKeyPress('s')

	if fc.stopCalls != 1 {
		t.Errorf("expected StopManualRecording to be called once, got %d", fc.stopCalls)
	}
}

func TestHandleKeyPressIgnoresUnknownKey(t *testing.T) {
	fc := &fakeController{}
	c := New(fc, testLogger())

	c.handleKeyPress('z')

	if fc.startCalls != 0 || fc.stopCalls != 0 || fc.shutdownCalls != 0 {
		t.Error("expected an unbound key to have no effect")
	}
}

func TestHandleQuitRequestsShutdown(t *testing.T) {
	fc := &fakeController{}
	c := New(fc, testLogger())

	c.handleKeyPress('q')

	if fc.shutdownCalls != 1 {
		t.Errorf("expected RequestShutdown to be called once, got %d", fc.shutdownCalls)
	}
}

func TestHandleStartPropagatesError(t *testing.T) {
	fc := &fakeController{startErr: errors.New("device busy")}
	c := New(fc, testLogger())

	if err := c.handleStart(); err == nil {
		t.Error("expected handleStart to propagate the controller's error")
	}
}
