package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	kmcp "github.com/keygate/keygate/internal/mcp"
	"github.com/keygate/keygate/internal/service"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		host      string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server exposing key administration
as tools: stats, search, get, recent logs, revoke, activate, add and generate.
Changes are written to the audit log with "mcp" as the client address.

In stdio mode the server speaks JSON-RPC over stdin/stdout, for clients that
launch it as a subprocess. In HTTP mode it listens on --host:--port using the
Streamable HTTP transport at /mcp. Every HTTP request must carry
"Authorization: Bearer <admin password>", and the command refuses to start
when no admin password is configured.`,
		Example: `  keygate mcp                              # stdio mode
  keygate mcp --transport http --port 3001 # HTTP mode on 127.0.0.1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if transport != "stdio" && transport != "http" {
				return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				srv := kmcp.NewMCPServer(a.keys, versionString(), a.logger)
				if transport == "http" {
					auth, err := service.NewAuthService(service.AuthConfig{
						SessionSecret:     a.cfg.Auth.SessionSecret,
						AdminPasswordHash: a.cfg.Auth.AdminPasswordHash,
						AdminPassword:     a.cfg.Auth.AdminPassword,
					})
					if err != nil {
						return fmt.Errorf("init auth: %w", err)
					}
					if !auth.AdminEnabled() {
						return fmt.Errorf("%w; set auth.admin_password or auth.admin_password_hash", kmcp.ErrAdminDisabled)
					}
					return srv.ServeHTTP(net.JoinHostPort(host, strconv.Itoa(port)), auth)
				}
				return srv.ServeStdio()
			})
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "HTTP bind address (only used with --transport http)")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}
