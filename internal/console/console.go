// Package console is a terminal admin surface over the pipeline
// controller, adapted from the teacher's internal/server keyboard
// listener (internal/server/keyboard.go, internal/server/server.go
// setupKeyActions/handleKeyPress) — repurposed from "start/stop a
// fixed continuous transcriber over a Unix socket" to "report pipeline
// controller state and trigger manual recording" from the terminal.
package console

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/eiannone/keyboard"
)

// Controller is the subset of the pipeline controller the console
// drives. Kept narrow so console has no import-time dependency on the
// pipeline package's concrete type.
type Controller interface {
	StartManualRecording() error
	StopManualRecording() error
	Status() string
	RequestShutdown()
}

type keyAction struct {
	key     rune
	desc    string
	handler func() error
}

// Console reads single keystrokes from the terminal and dispatches
// them to a Controller.
type Console struct {
	controller Controller
	logger     *log.Logger

	mu         sync.Mutex
	active     bool
	keyActions map[rune]keyAction
	ctx        context.Context
	cancel     context.CancelFunc
}

// New builds a Console over controller.
func New(controller Controller, logger *log.Logger) *Console {
	c := &Console{controller: controller, logger: logger}
	c.setupKeyActions()
	return c
}

func (c *Console) setupKeyActions() {
	c.keyActions = map[rune]keyAction{
		'r': {key: 'r', desc: "Start manual recording", handler: c.handleStart},
		's': {key: 's', desc: "Stop manual recording", handler: c.handleStop},
		'i': {key: 'i', desc: "Show status", handler: c.handleStatus},
		'?': {key: '?', desc: "Show help", handler: c.handleHelp},
		'q': {key: 'q', desc: "Quit", handler: c.handleQuit},
	}
}

// Start opens the keyboard and begins dispatching keystrokes. It is a
// no-op if already running.
func (c *Console) Start() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	go c.listen()
}

// Stop ends the keystroke dispatch loop.
func (c *Console) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.active = false
	c.mu.Unlock()
}

func (c *Console) listen() {
	defer func() {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
	}()

	if err := keyboard.Open(); err != nil {
		c.logger.Printf("failed to open console keyboard: %v", err)
		return
	}
	defer keyboard.Close()

	fmt.Println("Console listening. Press '?' for help.")

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		char, key, err := keyboard.GetKey()
		if err != nil {
			c.logger.Printf("error reading console key: %v", err)
			return
		}
		if key == keyboard.KeyEsc || key == keyboard.KeyCtrlC {
			c.handleQuit()
			return
		}
		c.handleKeyPress(char)
	}
}

func (c *Console) handleKeyPress(key rune) {
	action, ok := c.keyActions[key]
	if !ok {
		return
	}
	if err := action.handler(); err != nil {
		c.logger.Printf("console action %q failed: %v", action.desc, err)
	}
}

func (c *Console) handleStart() error {
	err := c.controller.StartManualRecording()
	if err == nil {
		fmt.Println("\nManual recording started")
	}
	return err
}

func (c *Console) handleStop() error {
	err := c.controller.StopManualRecording()
	if err == nil {
		fmt.Println("\nManual recording stopped")
	}
	return err
}

func (c *Console) handleStatus() error {
	fmt.Printf("\nPipeline status: %s\n\n", c.controller.Status())
	return nil
}

func (c *Console) handleHelp() error {
	fmt.Println("\nAvailable console commands:")
	order := []rune{'r', 's', 'i', '?', 'q'}
	for _, k := range order {
		if a, ok := c.keyActions[k]; ok {
			fmt.Printf("  %c: %s\n", a.key, a.desc)
		}
	}
	fmt.Println()
	return nil
}

func (c *Console) handleQuit() error {
	c.controller.RequestShutdown()
	c.Stop()
	return nil
}
