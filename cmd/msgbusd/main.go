// Command msgbusd is the router daemon: a thin composition root that loads
// configuration, starts one core.Router, and turns every configured router
// address into a listening acceptor. It carries no bus-application logic of
// its own (spec §1 non-goals: no ping/resource-server/shutdown services).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-msgbus/msgbus/internal/config"
	"github.com/go-msgbus/msgbus/pkg/msgbus/core"
	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
	"github.com/go-msgbus/msgbus/pkg/msgbus/types"
)

var (
	configPath   string
	listenAddrs  []string
	password     string
	debugLogging bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "msgbusd",
		Short: "msgbusd runs a message bus router",
		Long:  "msgbusd starts one routing-fabric router (spec C1), accepting endpoint and bridge connections on the configured addresses.",
		RunE:  runRouter,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a config file (defaults come from spec §5/§6 if omitted)")
	root.Flags().StringArrayVar(&listenAddrs, "listen", nil, "router acceptor address (repeatable); overrides msgbus.router.address")
	root.Flags().StringVar(&password, "password", "", "router handshake password; overrides msgbus.router.password")
	root.Flags().BoolVar(&debugLogging, "debug", false, "enable debug-level logging")
	return root
}

func runRouter(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("msgbusd: %w", err)
	}
	addrs := cfg.RouterAddresses
	if len(listenAddrs) > 0 {
		addrs = listenAddrs
	}
	pw := cfg.RouterPassword
	if password != "" {
		pw = password
	}

	log := definition.NewDefaultLogger("router")
	log.ToggleDebug(debugLogging)

	router := core.NewRouter(core.RouterConfig{
		IDs:      types.IDRange{Base: 1, End: 1 << 32},
		Password: pw,
	}, log)

	for _, addr := range addrs {
		acceptor, err := core.NewAcceptorFromAddress(addr)
		if err != nil {
			return fmt.Errorf("msgbusd: acceptor %q: %w", addr, err)
		}
		router.AddAcceptor(acceptor)
		log.Infof("listening on %s", addr)
	}

	if cfg.MQTTBroker != "" {
		bridge, err := core.NewMQTTBridgeFromAddress(cfg.MQTTBroker, "msgbus/bridge")
		if err != nil {
			return fmt.Errorf("msgbusd: mqtt bridge %q: %w", cfg.MQTTBroker, err)
		}
		router.AddConnection(bridge)
		log.Infof("bridged to mqtt broker %s", cfg.MQTTBroker)
	}

	return runUntilSignal(cmd, router, log)
}

func runUntilSignal(cmd *cobra.Command, router *core.Router, log *definition.LogrusLogger) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			router.Finish()
			return nil
		case s := <-sig:
			log.Infof("received %s, shutting down", s)
			router.Finish()
			return nil
		case now := <-ticker.C:
			router.Update(now)
		}
	}
}
