// Command bldtrack builds this module with goyek while tracking which task
// actions are running.
//
// Usage:
//
//	go run ./cmd/bldtrack [flags] [tasks]
//
// Configuration is read from bldtrack.yaml in the working directory, if it
// exists, and from BLDTRACK_* environment variables.
package main

import (
	"context"
	"os"

	"github.com/fredrikaverpil/bldtrack"
	"github.com/goyek/goyek/v3"
	"github.com/goyek/x/boot"
	"go.uber.org/zap"
)

const configFile = "bldtrack.yaml"

func main() {
	cfg, err := bldtrack.LoadConfig(configFile)
	bldtrack.Must(err)

	log, err := bldtrack.NewLogger(cfg, os.Stderr)
	bldtrack.Must(err)
	defer func() { _ = log.Sync() }()

	bt, err := bldtrack.New(cfg, bldtrack.WithLogger(log))
	bldtrack.Must(err)

	goyek.Use(bt.Middleware)
	goyek.SetDefault(define(bt))
	boot.Main()
}

// define registers the build tasks and returns the default one.
// It runs while the build is being configured, so environment reads here
// are recorded as configuration inputs.
func define(bt *bldtrack.BuildTree) *goyek.DefinedTask {
	ctx := context.Background()
	goflags := bt.Inputs().Getenv(ctx, "GOFLAGS", "compile")
	pkgs := bt.Inputs().Getenv(ctx, "BLDTRACK_PACKAGES", "compile")
	if pkgs == "" {
		pkgs = "./..."
	}

	env := goyek.Define(goyek.Task{
		Name:  "env",
		Usage: "print configuration inputs and the Go environment",
		Action: func(a *goyek.A) {
			for _, in := range bt.Inputs().Inputs() {
				a.Logf("input %s %s=%q (%s)", in.Kind, in.Key, in.Value, in.Consumer)
			}
			bldtrack.Exec(a, "go env GOVERSION GOOS GOARCH")
		},
	})

	compile := goyek.Define(goyek.Task{
		Name:     "compile",
		Usage:    "go build",
		Parallel: true,
		Action: func(a *goyek.A) {
			line := "go build " + pkgs
			if goflags != "" {
				line = "go build " + goflags + " " + pkgs
			}
			bldtrack.Exec(a, line)
		},
	})

	vet := goyek.Define(goyek.Task{
		Name:     "vet",
		Usage:    "go vet",
		Parallel: true,
		Action: func(a *goyek.A) {
			bldtrack.Exec(a, "go vet "+pkgs)
		},
	})

	check := goyek.Define(goyek.Task{
		Name:  "check",
		Usage: "verify modules, then check formatting and tidiness in parallel",
		Deps:  goyek.Deps{compile, vet},
		Action: func(a *goyek.A) {
			err := bt.Call(a.Context(), "mod-verify", func(ctx context.Context) error {
				return bldtrack.Command(ctx, "check", "go", "mod", "verify").Run()
			})
			if err != nil {
				a.Fatal(err)
			}
			err = bt.Parallel(a.Context(),
				bldtrack.Do("gofmt", func(ctx context.Context) error {
					return bldtrack.Command(ctx, "check", "gofmt", "-l", ".").Run()
				}),
				bldtrack.Do("mod-tidy", func(ctx context.Context) error {
					return bldtrack.Command(ctx, "check", "go", "mod", "tidy", "-diff").Run()
				}),
			)
			if err != nil {
				a.Fatal(err)
			}
		},
	})

	diag := goyek.Define(goyek.Task{
		Name:  "diag",
		Usage: "print build tree diagnostics as JSON",
		Action: func(a *goyek.A) {
			bt.Logger().Debug("writing diagnostics", zap.String("task", a.Name()))
			if err := bt.WriteDiagnostics(a.Output()); err != nil {
				a.Fatal(err)
			}
		},
	})

	return goyek.Define(goyek.Task{
		Name:  "all",
		Usage: "run all checks",
		Deps:  goyek.Deps{env, check, diag},
	})
}
