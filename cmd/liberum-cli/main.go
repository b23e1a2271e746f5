// cmd/liberum-cli is a reference CLI for the Control API (spec §6).
//
// Usage:
//
//	liberum-cli new-node alice
//	liberum-cli start-node alice
//	liberum-cli publish-file alice ./document.pdf
//	liberum-cli download-file alice <fingerprint> ./out.pdf
//	liberum-cli list-nodes
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liberum-neto/liberum-neto/internal/control"
)

var socketPath string

func main() {
	root := &cobra.Command{
		Use:   "liberum-cli",
		Short: "Reference CLI for the liberum-neto Control API",
	}

	root.PersistentFlags().StringVarP(&socketPath, "control-socket", "s",
		"/tmp/liberum-core/core.sock", "Control API Unix socket path")

	root.AddCommand(
		newNodeCmd(),
		configNodeCmd(),
		startNodeCmd(),
		stopNodeCmd(),
		listNodesCmd(),
		getPeerIdCmd(),
		dialCmd(),
		publishFileCmd(),
		downloadFileCmd(),
		getProvidersCmd(),
		deleteObjectCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func call(op control.Opcode, req any) (control.Reply, error) {
	reply, err := control.Call(socketPath, op, req)
	if err != nil {
		return control.Reply{}, err
	}
	if reply.Err != nil {
		return reply, fmt.Errorf("%s: %s", reply.Err.Kind, reply.Err.Message)
	}
	return reply, nil
}

// ─── new-node ───────────────────────────────────────────────────────────────

func newNodeCmd() *cobra.Command {
	var seed int64
	var hasSeed bool

	cmd := &cobra.Command{
		Use:   "new-node <name>",
		Short: "Create a new node identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := control.NewNodeRequest{Name: args[0]}
			if hasSeed {
				s := uint64(seed)
				req.Seed = &s
			}
			_, err := call(control.OpNewNode, req)
			if err != nil {
				return err
			}
			fmt.Printf("created node %q\n", args[0])
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "Deterministic keypair seed")
	cmd.Flags().BoolVar(&hasSeed, "with-seed", false, "Use --seed instead of generating a random keypair")
	return cmd
}

// ─── config-node ────────────────────────────────────────────────────────────

func configNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config-node",
		Short: "Edit a node's bootstrap peers and external addresses",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add-bootstrap <name> <peer-id> <multiaddr>",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(control.OpConfigNode, control.ConfigNodeRequest{
				Name: args[0], Op: control.ConfigAddBootstrap, PeerID: args[1], Addr: args[2],
			})
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove-bootstrap <name> <peer-id>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(control.OpConfigNode, control.ConfigNodeRequest{
				Name: args[0], Op: control.ConfigRemoveBootstrap, PeerID: args[1],
			})
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add-external-addr <name> <multiaddr>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(control.OpConfigNode, control.ConfigNodeRequest{
				Name: args[0], Op: control.ConfigAddExternalAddr, Addr: args[1],
			})
			return err
		},
	})
	return cmd
}

// ─── start-node / stop-node ─────────────────────────────────────────────────

func startNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-node <name>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(control.OpStartNode, control.StartNodeRequest{Name: args[0]})
			return err
		},
	}
}

func stopNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop-node <name>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(control.OpStopNode, control.StopNodeRequest{Name: args[0]})
			return err
		},
	}
}

// ─── list-nodes ─────────────────────────────────────────────────────────────

func listNodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := call(control.OpListNodes, control.ListNodesRequest{})
			if err != nil {
				return err
			}
			for _, n := range reply.Nodes {
				state := "stopped"
				if n.Running {
					state = "running"
				}
				fmt.Printf("%s\t%s\n", n.Name, state)
			}
			return nil
		},
	}
}

// ─── get-peer-id ────────────────────────────────────────────────────────────

func getPeerIdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-peer-id <name>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := call(control.OpGetPeerId, control.GetPeerIdRequest{Name: args[0]})
			if err != nil {
				return err
			}
			fmt.Println(reply.PeerID)
			return nil
		},
	}
}

// ─── dial ───────────────────────────────────────────────────────────────────

func dialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dial <name> <peer-id> <multiaddr>",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(control.OpDial, control.DialRequest{Name: args[0], PeerID: args[1], Addr: args[2]})
			return err
		},
	}
}

// ─── publish-file / download-file ──────────────────────────────────────────

func publishFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-file <name> <path>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			reply, err := call(control.OpPublishFile, control.PublishFileRequest{Name: args[0], Bytes: data})
			if err != nil {
				return err
			}
			fmt.Println(reply.Fingerprint)
			return nil
		},
	}
}

func downloadFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download-file <name> <fingerprint> <out-path>",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := call(control.OpDownloadFile, control.DownloadFileRequest{Name: args[0], Fingerprint: args[1]})
			if err != nil {
				return err
			}
			return os.WriteFile(args[2], reply.Bytes, 0o644)
		},
	}
}

// ─── get-providers ──────────────────────────────────────────────────────────

func getProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-providers <name> <fingerprint>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := call(control.OpGetProviders, control.GetProvidersRequest{Name: args[0], Fingerprint: args[1]})
			if err != nil {
				return err
			}
			for _, p := range reply.Providers {
				fmt.Println(p)
			}
			return nil
		},
	}
}

// ─── delete-object ──────────────────────────────────────────────────────────

func deleteObjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-object <name> <fingerprint>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := call(control.OpDeleteObject, control.DeleteObjectRequest{Name: args[0], Fingerprint: args[1]})
			if err != nil {
				return err
			}
			s := reply.DeleteSummary
			fmt.Printf("deleted_myself=%v successful=%d failed=%d\n", s.DeletedMyself, s.Successful, s.Failed)
			return nil
		},
	}
}
