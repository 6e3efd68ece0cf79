package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/spf13/cobra"
)

// stdioRWC pairs process stdin/stdout into the ReadWriteCloser jsonrpc2
// expects, mirroring the teacher's stdioReadWriteCloser used to talk to
// LS subprocesses — here it's the other end of the same kind of pipe.
type stdioRWC struct{}

func (stdioRWC) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioRWC) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioRWC) Close() error                { return nil }

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tool dispatcher as a stdio JSON-RPC 2.0 server",
		Long: "Each request's method is a tool name (findSymbol, replaceSymbolBody, ...) " +
			"and its params are that tool's argument object; the response result is the " +
			"dispatcher's {ok, text} or {error, kind, message} envelope. This is a minimal " +
			"reference harness for exercising the dispatcher, not a schema-negotiating protocol.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagRoot, flagConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.manager.Activate(ctx, flagRoot); err != nil {
				return err
			}

			handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
				var params json.RawMessage
				if req.Params != nil {
					params = *req.Params
				}
				return a.dispatch.Dispatch(ctx, req.Method, params), nil
			})

			stream := jsonrpc2.NewBufferedStream(stdioRWC{}, jsonrpc2.VSCodeObjectCodec{})
			conn := jsonrpc2.NewConn(ctx, stream, handler)
			<-conn.DisconnectNotify()
			return a.manager.ShutdownAll(context.Background())
		},
	}
	return cmd
}
