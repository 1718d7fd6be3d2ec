package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"sitemap-service/backend/config"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "sitemap-server",
	Short: "Serve, dump and invalidate the XML sitemaps of the CMS sites",
	Long: `sitemap-server partitions the online pages of every configured site into
sitemap documents (by layout, section, year and page index), renders them
as <urlset> or <sitemapindex> XML and serves them behind a Redis origin
cache, with .xml.gz archives compressed on the fly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory holding sitemapConfig.yaml (default: ./backend/config, ./config, .)")
	rootCmd.AddCommand(serveCmd, dumpCmd, invalidateCmd)
}

func loadConfig() (*config.Config, error) {
	if configDir != "" {
		return config.Load(configDir)
	}
	return config.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("sitemap-server: %v", err)
		os.Exit(1)
	}
}
