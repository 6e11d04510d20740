// Command dspash-worker runs one dspash worker process: it accepts
// command-socket connections from the coordinator and executes whatever
// Exec-Graph / Batch-Exec-Graph requests arrive on them.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dspash/dspash-go/cmd/config"
	"github.com/dspash/dspash-go/internal/infrastructure/execnode"
	"github.com/dspash/dspash-go/internal/infrastructure/wire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

type runFlags struct {
	listenAddr string
	host       string
}

func newRootCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "dspash-worker",
		Short: "Run a dspash worker process",
		Long: `dspash-worker accepts command-socket connections from the coordinator
and runs the subgraphs it is handed as local shell processes.

Settings not exposed as flags are read from the environment; see PASH_TOP,
DISH_TOP, and PASH_TMP_PREFIX.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(context.Background(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.listenAddr, "listen", ":5000", "address to accept coordinator connections on")
	cmd.Flags().StringVar(&flags.host, "host", "", "this worker's externally-reachable host (default: hostname)")

	return cmd
}

func run(ctx context.Context, flags runFlags) error {
	cfg := config.Load()

	host := flags.host
	if host == "" {
		if h, err := os.Hostname(); err == nil {
			host = h
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := execnode.NewWorker(host, scriptRenderer(cfg.PashTmpPrefix))

	ln, err := net.Listen("tcp", flags.listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", flags.listenAddr, err)
	}

	log.Printf("dspash-worker: listening on %s as %s", flags.listenAddr, host)

	errCh := make(chan error, 1)
	go func() { errCh <- worker.Serve(ctx, ln) }()

	select {
	case <-ctx.Done():
		log.Println("dspash-worker: shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

// scriptRenderer builds an execnode.ScriptWriter that writes req's subgraph
// to a sourceable script under dir. Rendering IR into POSIX shell is the
// upstream PaSh compiler's own code generator and genuinely out of scope
// here (see execnode.ScriptWriter's doc comment); this renderer emits a
// minimal script that sources the subgraph's command list verbatim from its
// wire form, which is sufficient for subgraphs whose nodes are themselves
// already-compiled shell commands.
func scriptRenderer(dir string) execnode.ScriptWriter {
	return func(req wire.ExecGraphRequest) (string, error) {
		f, err := os.CreateTemp(dir, "dspash-script-*.sh")
		if err != nil {
			return "", err
		}
		defer f.Close()

		fmt.Fprintf(f, "#!/bin/bash\n# subgraph %s, %d command(s)\n", req.Graph.ID, len(req.Graph.Nodes))
		for _, node := range req.Graph.Nodes {
			fmt.Fprintf(f, "%s\n", strings.Join(node.Argv, " "))
		}
		return filepath.Clean(f.Name()), nil
	}
}
