package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	commonredis "github.com/jemiko1/crm-platform-sub005/common/redis"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd() *cobra.Command {
	var (
		stream   string
		group    string
		consumer string
		topic    string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail the notification stream and, optionally, an MQTT topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap(ctx, bootstrapOptions{redis: true, mqtt: topic != ""})
			if err != nil {
				return err
			}
			defer rt.close()
			if rt.redis == nil {
				return errors.New("watch needs a reachable redis")
			}
			if stream == "" {
				stream = rt.cfg.Notify.Stream
			}

			if topic != "" {
				if rt.mqtt == nil {
					return errors.New("MQTT is disabled or unreachable")
				}
				err := rt.mqtt.Subscribe(topic, rt.mqtt.QoS(), func(topic string, payload []byte) error {
					rt.logger.Info("mqtt message", zap.String("topic", topic), zap.ByteString("payload", payload))
					return nil
				})
				if err != nil {
					return err
				}
			}

			rt.logger.Info("watching stream", zap.String("stream", stream), zap.String("group", group))
			err = tailStream(ctx, rt.redis, streamTail{stream: stream, group: group, consumer: consumer, block: 2 * time.Second},
				func(m commonredis.StreamMessage) {
					rt.logger.Info("stream entry", zap.String("id", m.ID), zap.Any("values", m.Values))
				}, rt.logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&stream, "stream", "", "redis stream (default NOTIFY_STREAM)")
	cmd.Flags().StringVar(&group, "group", "crm-watch", "consumer group")
	cmd.Flags().StringVar(&consumer, "consumer", "watch-1", "consumer name within the group")
	cmd.Flags().StringVar(&topic, "mqtt-topic", "", "also print messages of this MQTT topic filter, e.g. crm/+/telephony")
	return cmd
}

type streamTail struct {
	stream   string
	group    string
	consumer string
	block    time.Duration
}

// tailStream delivers every new entry of the stream to handle and acks it,
// until ctx is done. Read errors are logged and retried.
func tailStream(ctx context.Context, client *redis.Client, t streamTail, handle func(commonredis.StreamMessage), logger *zap.Logger) error {
	if err := commonredis.CreateConsumerGroup(ctx, client, t.stream, t.group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := commonredis.ReadFromStream(ctx, client, t.stream, t.group, t.consumer, 50, t.block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("stream read failed", zap.String("stream", t.stream), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			handle(m)
			if err := client.XAck(context.Background(), t.stream, t.group, m.ID).Err(); err != nil {
				logger.Warn("ack failed", zap.String("id", m.ID), zap.Error(err))
			}
		}
	}
}
