package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supermarx/karl/internal/httpapi"
)

var serverAddr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the crawler/reader request loop",
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().StringVar(&serverAddr, "addr", ":8080", "listen address")
}

func runServer(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: httpapi.NewRouter(a.f, logger),
	}

	go func() {
		logger.Info("listening", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
