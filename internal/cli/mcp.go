package cli

import (
	"github.com/spf13/cobra"

	"github.com/Nissan15/hackathon/internal/domain"
	campusmcp "github.com/Nissan15/hackathon/internal/mcp"
	"github.com/Nissan15/hackathon/internal/recommend"
)

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve dashboard tools to agents over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			// stdout carries the protocol; logs stay on stderr.
			s := campusmcp.NewServer(a.build.Version, a.engine(store), recommend.NewService(store), domain.NewService(store))
			return campusmcp.ServeStdio(s)
		},
	}
}
