package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Snider/Fabric/pkg/config"
	"github.com/Snider/Fabric/pkg/logging"
	"github.com/Snider/Fabric/pkg/rpc"
	"github.com/Snider/Fabric/pkg/tracker"
	"github.com/spf13/cobra"
)

var trackerHost string
var trackerPort int

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Run the tracker: peer directory and CPU-load broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if trackerHost == "" {
			trackerHost = cfg.TrackerHost
		}
		if trackerPort == 0 {
			trackerPort = cfg.TrackerPort
		}

		logger := logging.New(logging.Config{Component: logging.ComponentTracker})
		logging.SetGlobal(logger)

		statePath := ""
		if dir, err := config.TrackerStateDir(); err == nil {
			statePath = dir + "/owned_files.json"
		}

		t := tracker.New(cfg.PeerTimeout, statePath, logger)

		stopSweep := make(chan struct{})
		go t.RunSweepLoop(cfg.HeartbeatInterval, stopSweep)
		defer close(stopSweep)

		addr := fmt.Sprintf("%s:%d", trackerHost, trackerPort)
		srv, err := rpc.NewServer(addr, t.Dispatch, encodeError, cfg.SocketTimeout, logger)
		if err != nil {
			return fmt.Errorf("tracker: listen on %s: %w", addr, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.ErrorFromFabric("tracker server stopped", err)
			}
		}()

		logger.Info("tracker listening", logging.Fields{"addr": addr})

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
		srv.Close()
		return nil
	},
}

func init() {
	trackerCmd.Flags().StringVar(&trackerHost, "host", "", "address to listen on (defaults to TRACKER_HOST)")
	trackerCmd.Flags().IntVarP(&trackerPort, "port", "p", 0, "port to listen on (defaults to TRACKER_PORT)")
}
