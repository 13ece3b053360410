// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	dtls "github.com/qwerty-iot/dtlssocket"
	"github.com/qwerty-iot/dtlssocket/common"
	"github.com/qwerty-iot/dtlssocket/keystore"
)

var serveFlags struct {
	listen   string
	keystore string
	identity string
	pskHex   string
	key      string
	cert     string
	ca       string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a DTLS echo server",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.listen, "listen", "", "listen address, host:port")
	f.StringVar(&serveFlags.keystore, "keystore", "", "json psk key file")
	f.StringVar(&serveFlags.identity, "identity", "", "single psk identity")
	f.StringVar(&serveFlags.pskHex, "psk-hex", "", "psk for --identity, hex encoded")
	f.StringVar(&serveFlags.key, "key", "", "private key file")
	f.StringVar(&serveFlags.cert, "cert", "", "certificate file")
	f.StringVar(&serveFlags.ca, "ca", "", "ca certificate file for client certificates")
}

func applyServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = serveFlags.listen
	}
	if flags.Changed("keystore") {
		cfg.Keystore = serveFlags.keystore
	}
	if flags.Changed("identity") {
		cfg.Identity = serveFlags.identity
	}
	if flags.Changed("psk-hex") {
		cfg.PskHex = serveFlags.pskHex
	}
	if flags.Changed("key") {
		cfg.Key = serveFlags.key
	}
	if flags.Changed("cert") {
		cfg.Cert = serveFlags.cert
	}
	if flags.Changed("ca") {
		cfg.CA = serveFlags.ca
	}
}

// listenerConfig turns the loaded configuration into listener settings.
// A key file and a single identity may be combined.
func listenerConfig(c *fileConfig) (*dtls.ListenerConfig, error) {
	var stores keystore.Chain
	if c.Keystore != "" {
		ks, err := keystore.LoadFile(c.Keystore)
		if err != nil {
			return nil, fmt.Errorf("keystore: %w", err)
		}
		stores = append(stores, ks)
	}
	if c.Identity != "" {
		psk, err := c.psk()
		if err != nil {
			return nil, err
		}
		ks := keystore.NewMemoryKeyStore()
		ks.AddKey(c.Identity, psk)
		stores = append(stores, ks)
	}

	key, cert, ca, err := c.material()
	if err != nil {
		return nil, err
	}
	lc := &dtls.ListenerConfig{
		Key:           key,
		Certificate:   cert,
		CACertificate: ca,
		DebugLevel:    c.DebugLevel,
		OnHandshake: func(peer string, identity string, duration time.Duration, err error) {
			if err != nil {
				common.LogWarn("dtlscat: handshake with %s failed after %s: %s", peer, duration, err.Error())
				return
			}
			common.LogInfo("dtlscat: %s connected as %q in %s", peer, identity, duration)
		},
	}
	if len(stores) > 0 {
		lc.KeyStore = stores
	}
	return lc, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd)
	lc, err := listenerConfig(cfg)
	if err != nil {
		return err
	}
	l, err := dtls.Listen(cfg.Listen, lc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s\n", l.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, l)
}

// serve echoes every accepted session until ctx is cancelled.
func serve(ctx context.Context, l *dtls.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return l.Close()
	})
	g.Go(func() error {
		for {
			conn, err := l.AcceptConn()
			if err != nil {
				if errors.Is(err, dtls.ErrClosed) {
					return nil
				}
				return err
			}
			g.Go(func() error {
				defer conn.Close()
				_, err := io.Copy(conn, conn)
				if err != nil {
					common.LogDebug("dtlscat: echo %s: %s", conn.RemoteAddr(), err.Error())
				}
				return nil
			})
		}
	})
	return g.Wait()
}
