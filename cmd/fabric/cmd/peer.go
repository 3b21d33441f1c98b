package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Snider/Fabric/pkg/client"
	"github.com/Snider/Fabric/pkg/config"
	"github.com/Snider/Fabric/pkg/executor"
	"github.com/Snider/Fabric/pkg/identity"
	"github.com/Snider/Fabric/pkg/logging"
	"github.com/Snider/Fabric/pkg/peerserver"
	"github.com/Snider/Fabric/pkg/quota"
	"github.com/Snider/Fabric/pkg/rpc"
	"github.com/spf13/cobra"
)

var peerHost string
var peerPort int
var peerTrackerAddr string

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Run a peer: task executor, memory/file/IPC server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if peerHost == "" {
			peerHost = "0.0.0.0"
		}
		if peerPort == 0 {
			peerPort = cfg.PeerPort
		}
		if peerTrackerAddr == "" {
			peerTrackerAddr = fmt.Sprintf("%s:%d", cfg.TrackerHost, cfg.TrackerPort)
		}

		logger := logging.New(logging.Config{Component: logging.ComponentPeer})
		logging.SetGlobal(logger)

		stateDir, err := config.PeerStateDir()
		if err != nil {
			return fmt.Errorf("peer: resolve state dir: %w", err)
		}
		idMgr, err := identity.NewManager(filepath.Join(stateDir, "identity.json"))
		if err != nil {
			return fmt.Errorf("peer: load identity: %w", err)
		}
		id, err := idMgr.EnsureIdentity()
		if err != nil {
			return fmt.Errorf("peer: create identity: %w", err)
		}

		selfAddr := fmt.Sprintf("%s:%d", peerHost, peerPort)

		ps, err := peerserver.New(peerserver.Config{
			SelfAddress:    selfAddr,
			TrackerAddress: peerTrackerAddr,
			PublicRoot:     filepath.Join(stateDir, "public"),
			OwnedRoot:      filepath.Join(stateDir, "owned"),
			TaskTimeout:    cfg.TaskTimeout,
			Quota: quota.Limits{
				MaxStorageBytes: cfg.MaxFileSize,
			},
		}, executor.NewRegistry(), logger)
		if err != nil {
			return fmt.Errorf("peer: init peer server: %w", err)
		}
		defer ps.Close()

		addr := fmt.Sprintf("%s:%d", peerHost, peerPort)
		srv, err := rpc.NewServer(addr, ps.Dispatch, encodeError, cfg.SocketTimeout, logger)
		if err != nil {
			return fmt.Errorf("peer: listen on %s: %w", addr, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.ErrorFromFabric("peer server stopped", err)
			}
		}()

		tr := client.NewTracker(peerTrackerAddr)
		if _, err := tr.Register(peerHost, peerPort, ps.CPULoad(), id.ID, ""); err != nil {
			logger.Warn("initial tracker registration failed", logging.Fields{"error": err.Error()})
		}
		go heartbeat(ctx, tr, ps, peerHost, peerPort, cfg.HeartbeatInterval, logger)

		logger.Info("peer listening", logging.Fields{"addr": addr, "id": id.ID})

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
		srv.Close()
		return nil
	},
}

// heartbeat periodically reports this peer's current queue load to the
// tracker so RequestCPU's least-load selection reflects reality, and so
// the peer's entry survives the tracker's liveness sweep.
func heartbeat(ctx context.Context, tr *client.Tracker, ps *peerserver.Peer, host string, port int, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tr.UpdateLoad(host, port, ps.CPULoad()); err != nil {
				logger.Warn("heartbeat failed", logging.Fields{"error": err.Error()})
			}
		}
	}
}

func init() {
	peerCmd.Flags().StringVar(&peerHost, "host", "", "address to listen on (defaults to 0.0.0.0)")
	peerCmd.Flags().IntVarP(&peerPort, "port", "p", 0, "port to listen on (defaults to PEER_PORT)")
	peerCmd.Flags().StringVar(&peerTrackerAddr, "tracker", "", "tracker address (defaults to TRACKER_HOST:TRACKER_PORT)")
}
