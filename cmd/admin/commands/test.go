package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/database"
	"github.com/taskdeck/taskdeck-api/internal/queue"
)

// NewTestCmd creates the test command.
func NewTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check connectivity to the configured backing services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			failed := false

			fmt.Println("Testing PostgreSQL...")
			if err := testDatabase(ctx, cfg); err != nil {
				fmt.Printf("  ✗ %v\n", err)
				failed = true
			} else {
				fmt.Println("  ✓ PostgreSQL is reachable")
			}

			fmt.Println("Testing Redis...")
			if err := testRedis(ctx, cfg); err != nil {
				fmt.Printf("  ✗ %v\n", err)
				failed = true
			} else {
				fmt.Println("  ✓ Redis is reachable")
			}

			if cfg.RabbitMQURL != "" {
				fmt.Println("Testing RabbitMQ...")
				if err := testRabbitMQ(ctx, cfg); err != nil {
					fmt.Printf("  ✗ %v\n", err)
					failed = true
				} else {
					fmt.Println("  ✓ RabbitMQ is reachable")
				}
			}

			fmt.Println("Testing identity provider JWKS endpoint...")
			if err := testJWKS(ctx, cfg); err != nil {
				fmt.Printf("  ✗ %v\n", err)
				failed = true
			} else {
				fmt.Println("  ✓ JWKS endpoint is accessible")
			}

			if failed {
				os.Exit(1)
			}
			return nil
		},
	}
}

func testDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.PingContext(ctx)
}

func testRedis(ctx context.Context, cfg *config.Config) error {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()
	return client.Ping(ctx).Err()
}

func testRabbitMQ(ctx context.Context, cfg *config.Config) error {
	bus, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()
	return bus.HealthCheck(ctx)
}

func testJWKS(ctx context.Context, cfg *config.Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.IdentityJWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
