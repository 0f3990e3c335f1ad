package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/chatter/internal/daemon"
	"github.com/matheus3301/chatter/internal/workspace"
	"go.uber.org/fx"
)

func main() {
	workspaceFlag := flag.String("workspace", "", "workspace name (overrides config default)")
	socketFlag := flag.String("socket", "", "socket path (defaults to the workspace socket)")
	flag.Parse()

	name := workspace.Resolve(*workspaceFlag)
	if err := workspace.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Workspace: name, SocketPath: *socketFlag}),
	)

	app.Run()
}
