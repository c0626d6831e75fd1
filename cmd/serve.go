package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/imgdice/internal/raster"
	"github.com/kiesman99/imgdice/internal/raster/gdalraster"
	"github.com/kiesman99/imgdice/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the dicing API",
	Long: `Start an HTTP server that runs dice jobs on files local to the server.

Every image, tile index and output directory named in a request must lie
under --root; relative paths are taken from it. Browser requests are refused
unless their origin is listed with --allow-origin.

Examples:
  # Start server on default port 8080
  imgdice serve

  # Start server on custom port with at most 8 threads per job
  imgdice serve --port 3000 --max-threads 8

  # Serve jobs on /data and allow one web frontend
  imgdice serve --root /data --allow-origin https://maps.example.org

  # Start server with custom bind address
  imgdice serve --bind 0.0.0.0 --port 8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 10*time.Minute, "request timeout")
	serveCmd.Flags().Int("max-threads", 0, "upper limit for the threads parameter (0 = no limit)")
	serveCmd.Flags().String("output-driver", "", "GDAL driver for output tiles (default: derived from each job's image extension)")
	serveCmd.Flags().StringSlice("output-co", nil, "GDAL creation option KEY=VALUE for output tiles (repeatable)")
	serveCmd.Flags().String("root", ".", "directory that every request path must resolve under")
	serveCmd.Flags().StringSlice("allow-origin", nil, "browser origin allowed to call the API (repeatable, * for any)")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.max-threads", serveCmd.Flags().Lookup("max-threads"))
	viper.BindPFlag("server.output-driver", serveCmd.Flags().Lookup("output-driver"))
	viper.BindPFlag("server.output-co", serveCmd.Flags().Lookup("output-co"))
	viper.BindPFlag("server.root", serveCmd.Flags().Lookup("root"))
	viper.BindPFlag("server.allow-origin", serveCmd.Flags().Lookup("allow-origin"))
}

func runServe(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	root, err := filepath.Abs(viper.GetString("server.root"))
	if err != nil {
		return fmt.Errorf("server root: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("server root %s is not a directory", root)
	}

	outputDriver := viper.GetString("server.output-driver")
	co := viper.GetStringSlice("server.output-co")
	newDriver := func(image string) raster.Driver {
		return gdalraster.ForImage(image, outputDriver, co...)
	}

	apiServer := server.NewServer("0.1.0", root, newDriver)
	apiServer.MaxThreads = viper.GetInt("server.max-threads")
	apiServer.AllowedOrigins = viper.GetStringSlice("server.allow-origin")

	publisher, err := newPublisher(cmd.Context())
	if err != nil {
		return err
	}
	if publisher != nil {
		apiServer.Publisher = publisher
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Router(timeout),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		fmt.Fprintf(cmd.ErrOrStderr(), "\nShutting down server...\n")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Starting imgdice server on %s (root %s)\n", addr, root)
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Dice endpoint: http://%s/api/v1/dice\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Metrics: http://%s/metrics\n", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
