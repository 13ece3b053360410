// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	dtls "github.com/qwerty-iot/dtlssocket"
)

var connectFlags struct {
	host     string
	port     int
	identity string
	pskHex   string
	key      string
	cert     string
	ca       string
	timeout  string
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a DTLS server and pipe stdin/stdout through the session",
	RunE:  runConnect,
}

func init() {
	f := connectCmd.Flags()
	f.StringVar(&connectFlags.host, "host", "", "server host")
	f.IntVar(&connectFlags.port, "port", 0, "server port")
	f.StringVar(&connectFlags.identity, "identity", "", "psk identity")
	f.StringVar(&connectFlags.pskHex, "psk-hex", "", "psk, hex encoded")
	f.StringVar(&connectFlags.key, "key", "", "private key file")
	f.StringVar(&connectFlags.cert, "cert", "", "certificate file")
	f.StringVar(&connectFlags.ca, "ca", "", "ca certificate file")
	f.StringVar(&connectFlags.timeout, "timeout", "", "handshake timeout")
}

func applyConnectFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = connectFlags.host
	}
	if flags.Changed("port") {
		cfg.Port = connectFlags.port
	}
	if flags.Changed("identity") {
		cfg.Identity = connectFlags.identity
	}
	if flags.Changed("psk-hex") {
		cfg.PskHex = connectFlags.pskHex
	}
	if flags.Changed("key") {
		cfg.Key = connectFlags.key
	}
	if flags.Changed("cert") {
		cfg.Cert = connectFlags.cert
	}
	if flags.Changed("ca") {
		cfg.CA = connectFlags.ca
	}
	if flags.Changed("timeout") {
		cfg.Timeout = connectFlags.timeout
	}
}

// clientConfig turns the loaded configuration into socket settings.
func clientConfig(c *fileConfig) (*dtls.Config, error) {
	psk, err := c.psk()
	if err != nil {
		return nil, err
	}
	key, cert, ca, err := c.material()
	if err != nil {
		return nil, err
	}
	return &dtls.Config{
		Credentials: dtls.Credentials{
			Key:           key,
			Certificate:   cert,
			CACertificate: ca,
			PSK:           psk,
			PSKIdentity:   []byte(c.Identity),
			DebugLevel:    c.DebugLevel,
		},
	}, nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	applyConnectFlags(cmd)
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	sockCfg, err := clientConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	sock, err := dtls.DialContext(dialCtx, address, sockCfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", address, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "connected to %s\n", address)

	return pipe(ctx, sock, cmd.InOrStdin(), cmd.OutOrStdout())
}

// pipe copies in to conn and conn to out until the session ends or ctx is
// cancelled. EOF on in closes the session.
func pipe(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer) error {
	// a blocked read on in cannot be interrupted, so it stays outside the group
	go func() {
		_, _ = io.Copy(conn, in)
		_ = conn.Close()
	}()

	g, gctx := errgroup.WithContext(ctx)
	received := make(chan struct{})
	g.Go(func() error {
		defer close(received)
		_, err := io.Copy(out, conn)
		return err
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			_ = conn.Close()
		case <-received:
		}
		return nil
	})
	return g.Wait()
}
