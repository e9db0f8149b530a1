package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

var (
	port         int
	network      string
	rpcURL       string
	apiToken     string
	oauthPort    int
	defaultsFile string
	loginTimeout time.Duration
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the local dispatch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		memguard.CatchInterrupt()
		defer memguard.Purge()

		logger := newLogger()
		if apiToken == "" {
			apiToken = os.Getenv("SUILINK_API_TOKEN")
		}

		a, err := newApp(cmd.Context(), appOptions{
			dataDir:      dataDir,
			postgresDSN:  postgresDSN,
			defaultsFile: defaultsFile,
			network:      network,
			rpcURL:       rpcURL,
			apiToken:     apiToken,
			oauthAddr:    fmt.Sprintf("127.0.0.1:%d", oauthPort),
			loginTimeout: loginTimeout,
		}, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		// START_LOGIN blocks while the user is at the provider.
		writeTimeout := loginTimeout + 30*time.Second

		server := &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", port),
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Listening on %s (network: %s, data: %s)...\n", server.Addr, a.network.Name, dataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8787, "Port to listen on (loopback only)")
	serverCmd.Flags().StringVar(&network, "network", "", "Sui network (mainnet, testnet, devnet, localnet); defaults to the configured network")
	serverCmd.Flags().StringVar(&rpcURL, "rpc-url", "", "Override the network's JSON-RPC endpoint")
	serverCmd.Flags().StringVar(&apiToken, "api-token", "", "Bearer token required from clients (or SUILINK_API_TOKEN)")
	serverCmd.Flags().IntVar(&oauthPort, "oauth-port", 8765, "Port for the OAuth redirect listener")
	serverCmd.Flags().StringVar(&defaultsFile, "defaults-file", "", "JSON file overriding the bundled config defaults")
	serverCmd.Flags().DurationVar(&loginTimeout, "login-timeout", 5*time.Minute, "Maximum duration of a login")
}
