package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
)

// keyEvent represents a keyboard event.
type keyEvent struct {
	Key  tcell.Key
	Rune rune
}

// app is the dashboard's main controller: a single-view analogue of the
// cluster dashboard's App, trimmed of panel navigation, KV command
// input, and multi-node fetching.
type app struct {
	model   *model
	view    *view
	fetcher *StatusFetcher
	screen  tcell.Screen

	stopChan chan struct{}
	keyChan  chan keyEvent

	mu      sync.RWMutex
	running bool

	reconnectInterval time.Duration
	reconnectTimeout  time.Duration

	lastKeyTime time.Time
	lastKey     tcell.Key
	lastRune    rune
}

func newApp(fetcher *StatusFetcher) *app {
	return &app{
		model:             newModel(),
		view:              newView(),
		fetcher:           fetcher,
		stopChan:          make(chan struct{}),
		keyChan:           make(chan keyEvent, 10),
		reconnectInterval: 5 * time.Second,
		reconnectTimeout:  30 * time.Second,
	}
}

// Run starts the dashboard's main loop: terminal init, background
// polling goroutines, and a select loop over input/refresh/shutdown
// events.
func (a *app) Run() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize screen: %w", err)
	}
	screen.DisableMouse()

	a.screen = screen
	a.screen.Clear()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	a.mu.Lock()
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.pollEvents(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.refreshLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.reconnectLoop(ctx)
	}()

	a.refresh()
	a.render()

	for {
		select {
		case <-a.stopChan:
			cancel()
			wg.Wait()
			a.cleanup()
			return nil

		case <-sigChan:
			cancel()
			wg.Wait()
			a.cleanup()
			return nil

		case event := <-a.keyChan:
			if a.handleKeyEvent(event) {
				cancel()
				wg.Wait()
				a.cleanup()
				return nil
			}
			a.render()
		}
	}
}

// Stop gracefully stops the dashboard.
func (a *app) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		close(a.stopChan)
		a.running = false
	}
}

func (a *app) cleanup() {
	if a.screen != nil {
		a.screen.Fini()
	}
}

func (a *app) pollEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			ev := a.screen.PollEvent()
			if ev == nil {
				return
			}
			switch e := ev.(type) {
			case *tcell.EventKey:
				select {
				case a.keyChan <- keyEvent{Key: e.Key(), Rune: e.Rune()}:
				case <-ctx.Done():
					return
				}
			case *tcell.EventResize:
				a.screen.Sync()
				a.render()
			}
		}
	}
}

func (a *app) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.model.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refresh()
			a.render()
		}
	}
}

func (a *app) reconnectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.reconnectInterval):
			a.mu.RLock()
			connected := a.model.Connected
			a.mu.RUnlock()
			if !connected {
				a.attemptReconnect()
				a.render()
			}
		}
	}
}

func (a *app) attemptReconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.model.ReconnectAttempts++
	a.model.LastReconnect = time.Now()

	if a.model.ReconnectAttempts > int(a.reconnectTimeout/a.reconnectInterval) {
		a.model.ErrorMessage = "Connection failed after 30 seconds. Check that qlientd is running and reachable."
		return
	}

	a.refreshLocked()
}

func (a *app) refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshLocked()
}

func (a *app) refreshLocked() {
	status, err := a.fetcher.Fetch()
	if err != nil {
		a.model.Connected = false
		a.model.ErrorMessage = err.Error()
		return
	}

	a.model.Status = status
	a.model.Connected = true
	a.model.LastRefresh = time.Now()
	a.model.ErrorMessage = ""
	a.model.ReconnectAttempts = 0
}

func (a *app) render() {
	a.mu.RLock()
	output := a.view.Render(a.model)
	a.mu.RUnlock()

	a.screen.Clear()

	row := 0
	col := 0
	for _, line := range strings.Split(output, "\n") {
		style := currentStyles.Normal
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			for _, token := range []string{"Open", "Connecting", "ReconnectPending", "Closing", "Failed"} {
				if strings.HasSuffix(trimmed, token) {
					style = styleForState(token)
					break
				}
			}
		}
		for _, r := range line {
			a.screen.SetContent(col, row, r, nil, style)
			col++
		}
		row++
		col = 0
	}

	a.screen.Show()
}

// handleKeyEvent processes a keyboard event. Returns true if the
// dashboard should exit.
func (a *app) handleKeyEvent(event keyEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if now.Sub(a.lastKeyTime) < 200*time.Millisecond &&
		a.lastKey == event.Key && a.lastRune == event.Rune {
		return false
	}
	a.lastKeyTime = now
	a.lastKey = event.Key
	a.lastRune = event.Rune

	if event.Key == tcell.KeyCtrlC || event.Rune == 'q' {
		return true
	}

	if event.Rune == 'r' {
		a.refreshLocked()
	}

	return false
}
