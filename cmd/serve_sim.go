// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Thermoquad/somnus/pkg/halbridge"
	"github.com/Thermoquad/somnus/pkg/simboard"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	serveListen    string
	servePath      string
	serveWakeBy    string
	serveTargetAdr uint64
)

var serveSimCmd = &cobra.Command{
	Use:   "serve_sim",
	Short: "Serve a simulated board over WebSocket",
	Long: `Serve simulated targets over the HAL bridge protocol on a WebSocket
endpoint, so the bridge commands can be exercised without hardware.

Every connection gets its own board in the cold-boot state. Connect with:

  somnus --url ws://localhost:8080/bridge sleep --mode standby`,
	RunE: runServeSim,
}

func init() {
	rootCmd.AddCommand(serveSimCmd)
	serveSimCmd.Flags().StringVar(&serveListen, "listen", ":8080", "Listen address")
	serveSimCmd.Flags().StringVar(&servePath, "path", "/bridge", "WebSocket endpoint path")
	serveSimCmd.Flags().StringVar(&serveWakeBy, "wake-by", "timer", "What ends each simulated sleep (timer or pin)")
	serveSimCmd.Flags().Uint64Var(&serveTargetAdr, "target-address", 0x0000000000000001, "Address the simulated target answers to")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func runServeSim(cmd *cobra.Command, args []string) error {
	source, err := simboard.ParseSource(serveWakeBy)
	if err != nil {
		return err
	}

	logger := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sessions atomic.Uint64
	mux := http.NewServeMux()
	mux.HandleFunc(servePath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		id := sessions.Add(1)
		serveSession(ctx, logger.Named(fmt.Sprintf("session-%d", id)), ws, source)
	})

	srv := &http.Server{
		Addr:              serveListen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Somnus - Simulated Bridge\n")
	fmt.Printf("Listening on ws://%s%s (target address 0x%016X)\n", serveListen, servePath, serveTargetAdr)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func serveSession(ctx context.Context, logger hclog.Logger, ws *websocket.Conn, source simboard.Source) {
	board := simboard.New(simboard.WithLogger(logger.Named("simboard")))
	board.WakeBy(source)

	responder := halbridge.NewResponder(board, newWebSocketConnection(ws),
		halbridge.WithLogger(logger),
		halbridge.WithAddress(serveTargetAdr))

	logger.Info("session started", "remote", ws.RemoteAddr())
	if err := responder.Serve(ctx); err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			logger.Debug("peer closed websocket")
		} else {
			logger.Warn("session ended with error", "error", err)
		}
	}
	snap := board.Snapshot()
	logger.Info("session closed", "boots", snap.Boots, "announced", responder.Boots(),
		"resets", snap.Resets, "slept", snap.Slept)
	fmt.Printf("Session from %s closed\n%s", ws.RemoteAddr(), responder.Stats())
}
