package main

import (
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/spf13/cobra"

	"sitemap-service/backend/config"
	"sitemap-service/backend/internal/events"
	"sitemap-service/backend/internal/manager"
)

var (
	invalidateSite      uint64
	invalidateBroadcast bool
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop the cached and dumped sitemaps of a site",
	Long: `invalidate deletes the origin cache entry and the local dump directory of
a site (or of every site when --site is omitted). With --broadcast a page
event is published to kafka.topic so every running replica drops its own
dump directory as well.`,
	RunE: runInvalidate,
}

func init() {
	invalidateCmd.Flags().Uint64Var(&invalidateSite, "site", 0, "site id (default: all sites)")
	invalidateCmd.Flags().BoolVar(&invalidateBroadcast, "broadcast", false, "also publish the invalidation to Kafka")
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("init config failed: %w", err)
	}
	sites, err := selectSites(cfg, invalidateSite)
	if err != nil {
		return err
	}
	d, err := wire(cfg)
	if err != nil {
		return err
	}
	defer d.close()

	var pub *events.Publisher
	if invalidateBroadcast {
		producer, err := newProducer(cfg)
		if err != nil {
			return fmt.Errorf("connect kafka failed: %w", err)
		}
		defer producer.Close()
		pub = events.NewPublisher(producer, cfg.Kafka.Topic)
	}

	for _, s := range sites {
		if err := d.manager.Invalidate(cmd.Context(), s.ID, manager.SourceCLI); err != nil {
			return fmt.Errorf("invalidate site %d: %w", s.ID, err)
		}
		if pub != nil {
			evt := events.PageEvent{EventType: events.EventPagePublished, SiteID: s.ID, PublishedAt: time.Now()}
			if err := pub.Publish(evt); err != nil {
				return err
			}
		}
		log.Printf("invalidated site=%d broadcast=%t", s.ID, pub != nil)
	}
	return nil
}

func newProducer(cfg *config.Config) (sarama.SyncProducer, error) {
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	return sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
}
