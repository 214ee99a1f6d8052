package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/server"
	"github.com/keygate/keygate/internal/service"
)

const banner = `
 _  _______   _____  ___ _____ ___
| |/ / __\ \ / / __|/ _ \_   _| __|
| ' <| _| \ V / (_ | (_| || | | _|
|_|\_\___| |_| \___|\__,_||_| |___|
`

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Keygate HTTP server",
		Long: `Start the HTTP server for key holders and the admin console.

On first start against an empty key store, seed.count keys are generated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().Int("seed", 1000, "Keys to generate when the key store is empty (0 disables)")

	v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	v.BindPFlag("seed.count", cmd.Flags().Lookup("seed"))

	return cmd
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	src, srcCloser, err := openFiles(ctx, cfg.Files)
	if err != nil {
		return fmt.Errorf("open files: %w", err)
	}
	defer srcCloser.Close()

	authSvc, err := service.NewAuthService(service.AuthConfig{
		SessionSecret:     cfg.Auth.SessionSecret,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
		AdminPassword:     cfg.Auth.AdminPassword,
		IdleTimeout:       cfg.Auth.IdleTimeout(),
		MaxAge:            cfg.Auth.MaxAge(),
	})
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	if authSvc.SecretGenerated() {
		logger.Warn("auth.session_secret not set; using a random secret, sessions end on restart")
	}
	if !authSvc.AdminEnabled() {
		logger.Warn("no admin password configured; the admin console is disabled",
			"hint", "set auth.admin_password_hash (keygate admin hash-password)")
	}

	seeded, err := a.keys.Seed(ctx, cfg.Seed.Count)
	if err != nil {
		return fmt.Errorf("seed keys: %w", err)
	}
	if seeded > 0 {
		logger.Info("seeded empty key store", "keys", seeded)
	}

	access := service.NewAccessService(a.store, a.journal, src)
	srv := server.New(server.ConfigFrom(cfg, versionString()), a.store, a.keys, access, authSvc, logger)

	base := fmt.Sprintf("http://%s", cfg.Server.Addr())
	fmt.Print(banner)
	fmt.Println()
	fmt.Printf("→ Keygate %s\n", versionString())
	fmt.Printf("→ Listening on %s\n", base)
	fmt.Printf("→ Admin:      %s/admin\n", base)
	fmt.Printf("→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Printf("→ Health:     %s/healthz\n", base)
	fmt.Printf("→ Files:      %s\n", describeFiles(cfg.Files.Backend, cfg.Files.Root, cfg.Files.S3.Bucket))
	fmt.Println()

	return srv.ListenAndServe()
}

func describeFiles(backend, root, bucket string) string {
	if backend == "s3" {
		return "s3://" + bucket
	}
	return root
}
