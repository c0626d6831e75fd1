package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/imgdice/internal/dice"
	"github.com/kiesman99/imgdice/internal/raster/gdalraster"
	"github.com/kiesman99/imgdice/internal/storage"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "imgdice <image> <tile_index> <out_dir>",
	Short: "Cut a georeferenced raster into tiles along a tile index",
	Long: `imgdice splits a georeferenced raster into one output raster per polygon
of a tile index.

Each polygon is reduced to its bounding box, converted to a pixel window and
clipped to the image. Tiles that do not overlap the image are skipped. Output
files keep the band layout, data type, no-data value and projection of the
source and are named {out_dir}/{stem}_{x}_{y}.{ext} after the tile's
lower-left corner.

The tile index can be an ESRI shapefile, a GeoJSON FeatureCollection or any
vector format OGR can read.

Examples:
  # Dice an orthophoto with four workers
  imgdice ortho.tif grid.shp tiles/ -n 4

  # Skip non-polygon records and write world files
  imgdice dem.tif grid.geojson out/ --skip-invalid -w

  # Upload every tile to a bucket after it is written
  imgdice ortho.tif grid.gpkg out/ --upload-endpoint minio:9000 --upload-bucket tiles

  # Start HTTP server
  imgdice serve --port 8080`,
	Args:          cobra.ExactArgs(3),
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runDice,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.imgdice.yaml)")

	// Processing options
	rootCmd.Flags().IntP("threads", "n", 1, "number of tiles processed concurrently")
	rootCmd.Flags().Bool("fail-fast", false, "stop at the first tile that fails")
	rootCmd.Flags().Bool("skip-invalid", false, "skip non-polygon tile index records instead of aborting")

	// Output options
	rootCmd.Flags().String("driver", "", "GDAL driver for output tiles (default: derived from the image extension)")
	rootCmd.Flags().StringSlice("co", nil, "GDAL creation option KEY=VALUE for output tiles (repeatable)")
	rootCmd.Flags().String("prefix", "", "file name prefix for output tiles (default: image file name stem)")
	rootCmd.Flags().BoolP("worldfile", "w", false, "write a world file next to every tile")
	rootCmd.Flags().Bool("progress", false, "show a progress bar instead of one line per tile")
	rootCmd.Flags().BoolP("quiet", "q", false, "do not print created tiles")

	// Upload options, shared with serve
	rootCmd.PersistentFlags().String("upload-endpoint", "", "S3-compatible endpoint to upload tiles to")
	rootCmd.PersistentFlags().String("upload-bucket", "", "bucket for uploaded tiles")
	rootCmd.PersistentFlags().String("upload-prefix", "", "key prefix for uploaded tiles")
	rootCmd.PersistentFlags().String("upload-access-key", "", "access key for the upload endpoint")
	rootCmd.PersistentFlags().String("upload-secret-key", "", "secret key for the upload endpoint")
	rootCmd.PersistentFlags().Bool("upload-insecure", false, "use plain HTTP for the upload endpoint")

	// Bind flags to viper for root command
	for _, name := range []string{
		"threads", "fail-fast", "skip-invalid",
		"driver", "co", "prefix", "worldfile", "progress", "quiet",
	} {
		viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}
	viper.BindPFlag("upload.endpoint", rootCmd.PersistentFlags().Lookup("upload-endpoint"))
	viper.BindPFlag("upload.bucket", rootCmd.PersistentFlags().Lookup("upload-bucket"))
	viper.BindPFlag("upload.prefix", rootCmd.PersistentFlags().Lookup("upload-prefix"))
	viper.BindPFlag("upload.access-key", rootCmd.PersistentFlags().Lookup("upload-access-key"))
	viper.BindPFlag("upload.secret-key", rootCmd.PersistentFlags().Lookup("upload-secret-key"))
	viper.BindPFlag("upload.insecure", rootCmd.PersistentFlags().Lookup("upload-insecure"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".imgdice" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".imgdice")
	}

	// IMGDICE_THREADS, IMGDICE_UPLOAD_BUCKET, ...
	viper.SetEnvPrefix("imgdice")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// optionsFromConfig collects dice options from flags, config file and
// environment.
func optionsFromConfig(image, index, outDir string) dice.Options {
	return dice.Options{
		ImagePath:   image,
		IndexPath:   index,
		OutDir:      outDir,
		Threads:     viper.GetInt("threads"),
		FailFast:    viper.GetBool("fail-fast"),
		SkipInvalid: viper.GetBool("skip-invalid"),
		Prefix:      viper.GetString("prefix"),
		WorldFile:   viper.GetBool("worldfile"),
	}
}

// newPublisher returns nil when no upload endpoint is configured.
func newPublisher(ctx context.Context) (dice.Publisher, error) {
	config := storage.Config{
		Endpoint:  viper.GetString("upload.endpoint"),
		Bucket:    viper.GetString("upload.bucket"),
		Prefix:    viper.GetString("upload.prefix"),
		AccessKey: viper.GetString("upload.access-key"),
		SecretKey: viper.GetString("upload.secret-key"),
		Insecure:  viper.GetBool("upload.insecure"),
	}
	if config.Endpoint == "" {
		return nil, nil
	}

	uploader, err := storage.NewUploader(config)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return uploader, nil
}

func runDice(cmd *cobra.Command, args []string) error {
	image, index, outDir := args[0], args[1], args[2]
	opts := optionsFromConfig(image, index, outDir)
	if opts.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", opts.Threads)
	}

	driver := gdalraster.ForImage(image, viper.GetString("driver"), viper.GetStringSlice("co")...)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := dice.New(opts, driver)
	if err != nil {
		return err
	}
	d.Logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	d.Out = cmd.OutOrStdout()

	if viper.GetBool("quiet") {
		d.Out = io.Discard
	}
	if viper.GetBool("progress") {
		d.Out = io.Discard
		d.Progress = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("dicing"),
			progressbar.OptionShowIts(),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	publisher, err := newPublisher(ctx)
	if err != nil {
		return err
	}
	if publisher != nil {
		d.Publisher = publisher
	}

	report, err := d.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", image, report)
	if n := len(report.Failures()); n > 0 {
		return fmt.Errorf("%d tiles failed: %w", n, report.Err())
	}
	return nil
}
