package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type envLookup func(key string) (string, bool)

func newRootCmd(lookup envLookup) *cobra.Command {
	var (
		cfg        replayConfig
		brokersRaw string
	)

	cmd := &cobra.Command{
		Use:   "ims-dlq-replay",
		Short: "Повторно публикует события заказов из DLQ (по умолчанию dry-run)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(brokersRaw) == "" && lookup != nil {
				brokersRaw, _ = lookup("KAFKA_BROKERS")
			}
			cfg.brokers = parseBrokers(brokersRaw)
			cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
			cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)
			if err := cfg.validate(); err != nil {
				return err
			}

			logger := log.WithField("component", "dlq-replay")
			logger.WithFields(log.Fields{
				"source_topic": cfg.sourceTopic,
				"target_topic": cfg.targetTopic,
				"limit":        cfg.limit,
				"execute":      cfg.execute,
				"from_newest":  cfg.fromNewest,
			}).Info("starting dlq replay")

			deps, err := connect(cfg)
			if err != nil {
				return err
			}
			if deps.closeFn != nil {
				defer deps.closeFn()
			}

			r, err := newReplayer(cfg, deps, logger)
			if err != nil {
				return err
			}
			stats, err := r.run(cmd.Context())
			if err != nil {
				return fmt.Errorf("dlq replay failed: %w", err)
			}

			mode := "dry-run"
			if cfg.execute {
				mode = "execute"
			}
			cmd.Printf("dlq replay %s: processed=%d replayed=%d skipped=%d\n", mode, stats.processed, stats.replayed, stats.skipped)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flags.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flags.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "target topic for replay")
	flags.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flags.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flags.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flags.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")

	return cmd
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if err := newRootCmd(os.LookupEnv).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
