package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stopgate/internal/cli"
	"github.com/danielpatrickdp/stopgate/internal/config"
	"github.com/danielpatrickdp/stopgate/internal/transport/grpcapi"
)

type callOutput struct {
	Decision string   `json:"decision,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Attempt  int      `json:"attempt,omitempty"`
	Parts    []string `json:"parts,omitempty"`
}

func newCallCmd(flags *rootFlags) *cobra.Command {
	var addr, input string
	var parts []string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "call <hook>",
		Short: "Send one hook invocation to a running plugin service",
		Long: "Calls the gRPC plugin service the way a host would. The hook input is read\n" +
			"from --input, or from stdin when --input is empty.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rpc, ok := grpcapi.RPCFor(args[0])
			if !ok {
				return fmt.Errorf("unknown hook %q", args[0])
			}
			if addr == "" {
				if err := cli.LoadEnv(); err != nil {
					return err
				}
				cfg, err := config.Load(flags.configPath)
				if err != nil {
					return err
				}
				addr = cfg.GRPC.Addr
			}

			raw := []byte(input)
			if input == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				raw = data
			}
			var in map[string]any
			if err := json.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("decode hook input: %w", err)
			}

			client, conn, err := grpcapi.Dial(addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, got, err := client.Call(ctx, rpc, in, parts)
			if err != nil {
				return err
			}
			return cli.PrintJSON(cmd.OutOrStdout(), callOutput{
				Decision: resp.Decision,
				Reason:   resp.Reason,
				Attempt:  resp.Attempt,
				Parts:    got,
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "plugin service address (default: grpc.addr from config)")
	cmd.Flags().StringVar(&input, "input", "", "hook input as a JSON object")
	cmd.Flags().StringArrayVar(&parts, "part", nil, "existing output part (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "call deadline")
	return cmd
}
