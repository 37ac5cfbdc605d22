// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/somnus/pkg/halbridge"
	"github.com/Thermoquad/somnus/pkg/halwire"
	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/Thermoquad/somnus/pkg/simboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	monMode     string
	monSeconds  uint32
	monWakePin  bool
	monSettle   time.Duration
	monInterval time.Duration
	monCycles   int
	monSim      bool
	monWakeBy   string
	monLogFile  string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI running repeated low-power cycles",
	Long: `Run low-power cycles back to back and watch them in a terminal UI.

The monitor shows the controller state as each cycle progresses, the result
of the last cycle, a histogram of wake causes and the bridge link
statistics. A lost bridge link is reopened with exponential backoff.

Keys:
  p  pause or resume cycling
  m  switch between Standby and Stop
  r  reset the histogram and statistics
  q  quit

Use --sim to run against a simulated board instead of a connected target.
Logs are discarded unless --log-file is given.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addCycleFlags(monitorCmd, &monMode, &monSeconds, &monWakePin, &monSettle)
	monitorCmd.Flags().DurationVar(&monInterval, "interval", 2*time.Second, "Pause between cycles")
	monitorCmd.Flags().IntVar(&monCycles, "cycles", 0, "Stop after this many cycles (0 runs until quit)")
	monitorCmd.Flags().BoolVar(&monSim, "sim", false, "Run against a simulated board")
	monitorCmd.Flags().StringVar(&monWakeBy, "wake-by", "timer", "What ends each simulated sleep (timer or pin)")
	monitorCmd.Flags().StringVar(&monLogFile, "log-file", "", "Write logs to this file")
}

// cycleManager runs cycles on its own goroutine and reports to the TUI. In
// bridge mode it also owns the link and reopens it when it fails.
type cycleManager struct {
	logger   hclog.Logger
	stats    *halwire.Statistics
	board    *simboard.Board
	interval time.Duration
	limit    int

	mu       sync.RWMutex
	client   *halbridge.Client
	runner   *cycleRunner
	connInfo string

	mode   atomic.Int32
	paused atomic.Bool

	p    *tea.Program
	done chan struct{}
}

func (cm *cycleManager) setMode(m lowpower.Mode) {
	cm.mode.Store(int32(m))
}

func (cm *cycleManager) toggleMode() lowpower.Mode {
	next := lowpower.ModeStop
	if lowpower.Mode(cm.mode.Load()) == lowpower.ModeStop {
		next = lowpower.ModeStandby
	}
	cm.setMode(next)
	return next
}

func (cm *cycleManager) togglePause() bool {
	paused := !cm.paused.Load()
	cm.paused.Store(paused)
	return paused
}

func (cm *cycleManager) getRunner() *cycleRunner {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.runner
}

func (cm *cycleManager) linkErr() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.client == nil {
		return nil
	}
	return cm.client.Err()
}

func (cm *cycleManager) setClient(client *halbridge.Client, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.client = client
	cm.connInfo = connInfo
	cm.runner = newCycleRunner(client, cm.logger)
}

func (cm *cycleManager) close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.client != nil {
		cm.client.Close()
	}
}

// wait sleeps for d and reports false if shutdown was requested meanwhile.
func (cm *cycleManager) wait(d time.Duration) bool {
	select {
	case <-cm.done:
		return false
	case <-time.After(d):
		return true
	}
}

func (cm *cycleManager) loop() {
	for n := 1; cm.limit == 0 || n <= cm.limit; {
		select {
		case <-cm.done:
			return
		default:
		}

		if cm.paused.Load() {
			if !cm.wait(100 * time.Millisecond) {
				return
			}
			continue
		}

		spec := cycleSpec{
			mode:    lowpower.Mode(cm.mode.Load()),
			seconds: monSeconds,
			wakePin: monWakePin,
			settle:  monSettle,
			observer: func(s lowpower.State) {
				cm.p.Send(stateMsg(s))
			},
		}
		cm.p.Send(cycleStartMsg{n: n, spec: spec})
		res := cm.getRunner().run(spec)

		if err := cm.linkErr(); err != nil {
			cm.p.Send(linkLostMsg{err: err})
			if !cm.reconnect() {
				return
			}
			continue
		}

		var snap *simboard.Snapshot
		if cm.board != nil {
			s := cm.board.Snapshot()
			snap = &s
		}
		cm.p.Send(cycleDoneMsg{n: n, res: res, board: snap})
		n++

		if !cm.wait(cm.interval) {
			return
		}
	}
	cm.p.Send(finishedMsg{})
}

// reconnect reopens the bridge with exponential backoff. It returns false if
// shutdown was requested during reconnection.
func (cm *cycleManager) reconnect() bool {
	cm.close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		if !cm.wait(backoff) {
			return false
		}

		client, connInfo, err := OpenBridge(cm.logger, cm.stats)
		if err == nil {
			cm.setClient(client, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}
		cm.logger.Debug("reconnect failed", "error", err, "backoff", backoff)

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	mode, err := parseModeFlag(monMode)
	if err != nil {
		return err
	}

	var logOut io.Writer = io.Discard
	if monLogFile != "" {
		f, err := os.OpenFile(monLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := newLoggerTo(logOut)

	cm := &cycleManager{
		logger:   logger,
		interval: monInterval,
		limit:    monCycles,
		done:     make(chan struct{}),
	}
	cm.setMode(mode)

	var connInfo string
	if monSim {
		source, err := simboard.ParseSource(monWakeBy)
		if err != nil {
			return err
		}
		cm.board = simboard.New(simboard.WithLogger(logger.Named("simboard")))
		cm.board.WakeBy(source)
		cm.runner = newCycleRunner(cm.board, logger)
		connInfo = fmt.Sprintf("Simulated board (wake by %s)", source)
	} else {
		cm.stats = halwire.NewStatistics()
		client, info, err := OpenBridge(logger, cm.stats)
		if err != nil {
			return err
		}
		cm.setClient(client, info)
		connInfo = info
	}

	m := initialMonitorModel(cm, connInfo, mode)
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	go cm.loop()

	_, err = p.Run()
	close(cm.done)
	cm.close()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
