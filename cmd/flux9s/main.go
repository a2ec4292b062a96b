// Command flux9s is an interactive terminal monitor for FluxCD custom
// resources: a k9s-style watch-and-operate console over Kustomizations,
// HelmReleases, GitRepositories, and the rest of the Flux API surface.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/dgunzy/flux9s/internal/config"
	"github.com/dgunzy/flux9s/internal/ops"
	"github.com/dgunzy/flux9s/internal/registry"
	"github.com/dgunzy/flux9s/internal/store"
	"github.com/dgunzy/flux9s/internal/throttle"
	"github.com/dgunzy/flux9s/internal/transport"
	"github.com/dgunzy/flux9s/internal/ui"
	"github.com/dgunzy/flux9s/internal/watcher"
)

// BuildTag is set during build.
var BuildTag = "dev"

var (
	kubeconfigFlag string
	namespaceFlag  string
	contextFlag    string
	readOnlyFlag   bool
	debugFlag      bool
)

var rootCmd = &cobra.Command{
	Use:   "flux9s",
	Short: "Watch and operate on FluxCD resources from your terminal",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&kubeconfigFlag, "kubeconfig", "", "path to the kubeconfig file (default: $KUBECONFIG or ~/.kube/config)")
	rootCmd.Flags().StringVar(&namespaceFlag, "namespace", "", "namespace to watch (default: persisted config, else all namespaces)")
	rootCmd.Flags().StringVar(&contextFlag, "context", "", "kubeconfig context to use (default: current context or persisted config)")
	rootCmd.Flags().BoolVar(&readOnlyFlag, "read-only", false, "refuse all mutating operations")
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "disable error-throttling and enable verbose logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("flux9s %s\n", BuildTag)
		},
	})
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := newLogger(debugFlag)
	ctx := logr.NewContext(context.Background(), log)

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error(err, "failed to load config, continuing with defaults")
	}

	kubeContext := contextFlag
	if kubeContext == "" {
		kubeContext = cfg.Context
	}

	trans, err := transport.New(log, kubeconfigFlag, kubeContext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	namespace := namespaceFlag
	if namespace == "" {
		namespace = cfg.Namespace
	}

	st := store.New()
	st.SetLogger(log)
	var thr throttle.Logger = throttle.New()
	if debugFlag {
		thr = throttle.Disabled()
	}
	pool := watcher.New(trans, st, log, thr)
	coord := ui.New(st, pool, trans, ops.DefaultRegistry(), log, namespace, cfg.Favorites(), readOnlyFlag)

	for _, k := range registry.All {
		scope := watcher.ScopeSelector{All: true}
		if k.Namespaced && namespace != "" && namespace != "all" {
			scope = watcher.ScopeSelector{Namespace: namespace}
		}
		pool.Subscribe(ctx, k, scope)
	}

	app := newApp(coord, trans)
	return app.Run(ctx)
}
