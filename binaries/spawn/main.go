package main

// spawn is a diagnostic launcher for the subprocess package: it wires
// the child's standard streams per command-line flags, launches the
// command, and exits with the child's status.

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cerrors "github.com/flotillaproject/flotilla/common/errors"
	"github.com/flotillaproject/flotilla/common/log/hooks"
	"github.com/flotillaproject/flotilla/subprocess"
)

var (
	stdinPolicy  string
	stdoutPolicy string
	stderrPolicy string
	envVars    []string
	logLevel   string
	dump       bool
)

func main() {
	log.AddHook(hooks.NewContextHook())

	rootCmd := &cobra.Command{
		Use:          "spawn [flags] -- path [args...]",
		Short:        "Launch a process with declaratively wired standard streams",
		Args:         cobra.MinimumNArgs(1),
		RunE:         run,
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVar(&stdinPolicy, "stdin", "inherit", "stdin policy: inherit | pipe | path:FILE")
	rootCmd.Flags().StringVar(&stdoutPolicy, "stdout", "inherit", "stdout policy: inherit | pipe | path:FILE")
	rootCmd.Flags().StringVar(&stderrPolicy, "stderr", "inherit", "stderr policy: inherit | pipe | path:FILE")
	rootCmd.Flags().StringArrayVar(&envVars, "env", nil, "KEY=VALUE (repeatable); replaces the inherited environment")
	rootCmd.Flags().StringVar(&logLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
	rootCmd.Flags().BoolVar(&dump, "dump", false, "Dump the resolved exit status structure to stderr")

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(int(cerrors.NewError(err, cerrors.CouldNotExecExitCode).GetExitCode()))
	}
}

func run(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	stdin, err := parsePolicy(stdinPolicy, os.Stdin)
	if err != nil {
		return err
	}
	stdout, err := parsePolicy(stdoutPolicy, os.Stdout)
	if err != nil {
		return err
	}
	stderr, err := parsePolicy(stderrPolicy, os.Stderr)
	if err != nil {
		return err
	}

	var env map[string]string
	if len(envVars) > 0 {
		env = make(map[string]string, len(envVars))
		for _, kv := range envVars {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("malformed --env entry %q", kv)
			}
			env[k] = v
		}
	}

	sub, err := subprocess.Launch(args[0], args[1:], env, stdin, stdout, stderr)
	if err != nil {
		return err
	}
	defer sub.CloseStreams()

	if sub.Stdin() != nil {
		go func() {
			io.Copy(sub.Stdin(), os.Stdin)
			sub.Stdin().Close()
		}()
	}
	drained := make(chan struct{}, 2)
	pipes := 0
	if sub.Stdout() != nil {
		pipes++
		go func() {
			io.Copy(os.Stdout, sub.Stdout())
			drained <- struct{}{}
		}()
	}
	if sub.Stderr() != nil {
		pipes++
		go func() {
			io.Copy(os.Stderr, sub.Stderr())
			drained <- struct{}{}
		}()
	}

	st, statusErr := sub.Status().Get(context.Background())
	for i := 0; i < pipes; i++ {
		<-drained
	}
	if statusErr != nil {
		log.WithFields(log.Fields{"pid": sub.Pid(), "error": statusErr}).Error("Exit status unknown")
		os.Exit(int(cerrors.StatusUnknownExitCode))
	}

	if dump {
		spew.Fdump(os.Stderr, st)
	}
	if sig, ok := st.Signal(); ok {
		log.WithFields(log.Fields{"pid": sub.Pid(), "signal": sig}).Warn("Child terminated by signal")
		os.Exit(128 + sig)
	}
	code, _ := st.ExitCode()
	os.Exit(code)
	return nil
}

func parsePolicy(policy string, inherited *os.File) (subprocess.IO, error) {
	switch {
	case policy == "inherit":
		return subprocess.Inherit(inherited), nil
	case policy == "pipe":
		return subprocess.Pipe(), nil
	case strings.HasPrefix(policy, "path:"):
		return subprocess.Path(strings.TrimPrefix(policy, "path:")), nil
	}
	return nil, fmt.Errorf("unrecognized stream policy %q", policy)
}
