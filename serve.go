// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elliotnunn/memzip/internal/archivecache"
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	servePrefetch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve DIR",
	Short: "Serve a directory over HTTP, with every ZIP archive browsable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cache := archivecache.New(archiveSlots)
		fsys := Wrapper(ctx, os.DirFS(args[0]), args[0], cache)
		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           http.FileServerFS(fsys),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if servePrefetch {
			go fsys.Prefetch()
		}
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()

		slog.Info("serveStart", "addr", serveAddr, "dir", args[0], "archiveSlots", archiveSlots)
		err := srv.ListenAndServe()
		loads, evicted := cache.Stats()
		slog.Info("serveStop", "loads", loads, "evicted", evicted)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":1993", "listen address")
	serveCmd.Flags().BoolVar(&servePrefetch, "prefetch", false, "parse every archive in the background at startup")
	rootCmd.AddCommand(serveCmd)
}
