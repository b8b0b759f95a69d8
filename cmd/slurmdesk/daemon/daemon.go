package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/jub0bs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/servicelocator"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/version"
	"github.com/slurmdesk/slurmdesk/internal/api"
	"github.com/slurmdesk/slurmdesk/internal/httprecover"
	"github.com/slurmdesk/slurmdesk/internal/session"
)

const shutdownGrace = 30 * time.Second

var localOrigins = []string{"http://localhost:*", "https://localhost:*"}

func NewDaemonCmd(clientVersion string) *cobra.Command {
	var (
		port    string
		connect bool
		origins []string
	)
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Serve the cluster session over a local REST API",
		Long: "Serve the cluster session over a local REST API on 127.0.0.1.\n" +
			"Browser clients on localhost are allowed, --origin adds more.",
		Run: func(cmd *cobra.Command, args []string) {
			s := servicelocator.GetSession()
			if connect {
				go connectInBackground(cmd.Context(), s)
			}

			handler, err := newHandler(s, clientVersion, origins)
			if err != nil {
				cmdutil.Fatal(err)
			}
			ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", port))
			if err != nil {
				cmdutil.Fatal(fmt.Errorf("cannot listen on port %s: %w", port, err))
			}
			if err := serve(cmd.Context(), ln, handler, s); err != nil {
				cmdutil.Fatal(err)
			}
		},
	}
	daemonCmd.Flags().StringVar(&port, "port", version.DefaultPort, "The TCP port the daemon will listen to")
	daemonCmd.Flags().BoolVar(&connect, "connect", true, "Connect to the cluster at startup with the non interactive credentials")
	daemonCmd.Flags().StringSliceVar(&origins, "origin", nil, "Additional origin allowed to call the API (repeatable)")
	return daemonCmd
}

// connectInBackground dials with the credentials found in the environment.
// Clients follow the outcome on /v1/events.
func connectInBackground(ctx context.Context, s *session.Session) {
	slog.Info("Connecting to the cluster")
	if _, err := cmdutil.Connect(ctx); err != nil {
		slog.Error("Failed to connect", slog.Any("error", err))
		return
	}
	s.StartPolling(0)
}

func newCORSMiddleware(extraOrigins []string) (*cors.Middleware, error) {
	return cors.NewMiddleware(cors.Config{
		Origins: slices.Concat(localOrigins, extraOrigins),
		Methods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		RequestHeaders:  []string{"Accept", "Authorization", "Content-Type"},
		MaxAgeInSeconds: 86400,
	})
}

func newHandler(s *session.Session, clientVersion string, extraOrigins []string) (http.Handler, error) {
	mw, err := newCORSMiddleware(extraOrigins)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	return httprecover.RecoverPanic(mw.Wrap(api.NewHTTPRouter(s, clientVersion))), nil
}

// serve runs until ctx is done, then drains the open requests and drops the
// cluster connection.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, s *session.Session) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: time.Minute,
	}
	addr := slog.String("address", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP server listening", addr)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("HTTP server stopping", addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if derr := s.Disconnect(); derr != nil {
			slog.Warn("Disconnect failed", slog.Any("error", derr))
		}
		return err
	})
	return g.Wait()
}
