package cli

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/greenpool/pkg/control"
)

func newRevokeCmd(opts *rootOptions) *cobra.Command {
	var (
		redisAddr string
		channel   string
		signal    string
	)

	cmd := &cobra.Command{
		Use:   "revoke <job-id>",
		Short: "Terminate a running job on every listening worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if redisAddr == "" {
				redisAddr = cfg.Control.RedisAddr
			}
			if channel == "" {
				channel = cfg.Control.Channel
			}
			if redisAddr == "" {
				return fmt.Errorf("revoke: no redis address (set --redis-addr or control.redis_addr)")
			}

			sig, err := control.ParseSignal(signal)
			if err != nil {
				return err
			}

			rdb := redis.NewClient(&redis.Options{
				Addr:     redisAddr,
				Password: cfg.Control.RedisPassword,
				DB:       cfg.Control.RedisDB,
			})
			defer rdb.Close()

			n, err := control.Revoke(cmd.Context(), rdb, channel, args[0], sig)
			if err != nil {
				return err
			}
			opts.logger(cfg).Debug("revoke published", "job_id", args[0], "channel", channel, "receivers", n)
			fmt.Fprintf(cmd.OutOrStdout(), "revoke %s sent to %d worker(s)\n", args[0], n)
			return nil
		},
	}

	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis address (default from config)")
	cmd.Flags().StringVar(&channel, "channel", "", "Revoke channel (default from config)")
	cmd.Flags().StringVarP(&signal, "signal", "s", "SIGTERM", "Signal name recorded with the revoke")

	return cmd
}
