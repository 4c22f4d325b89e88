package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	fabricbridge "github.com/opengovern/fabric-bridge"
	"github.com/opengovern/fabric-bridge/adapters"
	"github.com/opengovern/fabric-bridge/auth"
	"github.com/opengovern/fabric-bridge/internal/tracing"
	"github.com/opengovern/fabric-bridge/metrics"
)

const envPrefix = "FABRICCTL"

// settings is everything fabricctl reads from flags, environment and the
// config file.
type settings struct {
	LogLevel     string              `mapstructure:"log_level"`
	Token        string              `mapstructure:"token"`
	Auth         auth.SPNConfig      `mapstructure:"auth"`
	FabricURL    string              `mapstructure:"fabric_url"`
	PowerBIURL   string              `mapstructure:"powerbi_url"`
	OTLPEndpoint string              `mapstructure:"otlp_endpoint"`
	MetricsFile  string              `mapstructure:"metrics_file"`
	Client       fabricbridge.Config `mapstructure:"client"`
}

// app carries per-invocation state shared by the subcommands.
type app struct {
	v        *viper.Viper
	cfgFile  string
	settings settings
	logger   hclog.Logger
	registry *prometheus.Registry
	shutdown tracing.ShutdownFunc

	// tokens overrides the provider built from settings.
	tokens fabricbridge.TokenProvider
}

// Execute runs fabricctl with the process arguments.
func Execute() error {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}

// Run builds a fresh command tree and executes it with args. Traces are
// flushed and the metrics file is written on every exit path once settings
// have loaded, including when the command fails.
func Run(args []string, stdout, stderr io.Writer) (err error) {
	a := &app{v: viper.New()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	defer func() {
		if cerr := a.close(context.Background()); cerr != nil {
			if err == nil {
				err = cerr
			} else {
				a.logger.Warn("cleanup failed", "error", cerr)
			}
		}
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
		}
	}()
	return root.Execute()
}

func newRootCmd(a *app) *cobra.Command {
	defaults := fabricbridge.DefaultConfig()

	root := &cobra.Command{
		Use:   "fabricctl",
		Short: "Call the Microsoft Fabric and Power BI REST APIs",
		Long: `fabricctl sends requests to the Fabric and Power BI control plane with
retries on gateway errors and follows long-running operations to completion.

Credentials come from --token, or from a service principal (--tenant-id,
--client-id and --client-secret or --cert-path).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.init(cmd) },
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.fabricctl.yaml)")
	pf.String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	pf.String("token", "", "static bearer token used for every audience")
	pf.String("tenant-id", "", "service principal tenant id")
	pf.String("client-id", "", "service principal client id")
	pf.String("client-secret", "", "service principal client secret")
	pf.String("cert-path", "", "service principal PFX certificate")
	pf.String("cert-password", "", "password of the PFX certificate")
	pf.String("authority-host", auth.DefaultAuthorityHost, "Entra ID authority host")
	pf.String("fabric-url", adapters.DefaultFabricBaseURL, "Fabric API base URL")
	pf.String("powerbi-url", adapters.DefaultPowerBIBaseURL, "Power BI API base URL")
	pf.String("operations-url", defaults.OperationsBaseURL, "long-running operations base URL")
	pf.Duration("request-timeout", defaults.RequestTimeout, "timeout of a single HTTP attempt")
	pf.Int("max-attempts", defaults.Retry.MaxAttempts, "attempts per request, including the first")
	pf.Duration("poll-interval", defaults.Poll.Interval, "wait between operation status checks")
	pf.Duration("max-wait", defaults.Poll.MaxWait, "longest time to follow a long-running operation")
	pf.String("otlp-endpoint", "", "OTLP/HTTP endpoint for traces (tracing is off when empty)")
	pf.String("metrics-file", "", "write Prometheus metrics to this file on exit")

	bind := map[string]string{
		"log_level":                  "log-level",
		"token":                      "token",
		"auth.tenant_id":             "tenant-id",
		"auth.client_id":             "client-id",
		"auth.client_secret":         "client-secret",
		"auth.cert_path":             "cert-path",
		"auth.cert_password":         "cert-password",
		"auth.authority_host":        "authority-host",
		"fabric_url":                 "fabric-url",
		"powerbi_url":                "powerbi-url",
		"client.operations_base_url": "operations-url",
		"client.request_timeout":     "request-timeout",
		"client.retry.max_attempts":  "max-attempts",
		"client.poll.interval":       "poll-interval",
		"client.poll.max_wait":       "max-wait",
		"otlp_endpoint":              "otlp-endpoint",
		"metrics_file":               "metrics-file",
	}
	for key, flag := range bind {
		cobra.CheckErr(a.v.BindPFlag(key, pf.Lookup(flag)))
	}

	root.AddCommand(
		newInvokeCmd(a),
		newWorkspacesCmd(a),
		newRefreshSQLEndpointCmd(a),
		newShortcutsCmd(a),
		newClusterURLCmd(a),
		newWorkspaceIconCmd(a),
		newEnvironmentCmd(a),
		newVersionCmd(a),
	)
	return root
}

// init loads settings and sets up logging, metrics and tracing.
func (a *app) init(cmd *cobra.Command) error {
	if err := a.loadConfig(); err != nil {
		return err
	}

	a.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "fabricctl",
		Level:  hclog.LevelFromString(a.settings.LogLevel),
		Output: cmd.ErrOrStderr(),
	})
	if a.v.ConfigFileUsed() != "" {
		a.logger.Debug("using config file", "path", a.v.ConfigFileUsed())
	}

	a.registry = prometheus.NewRegistry()
	metrics.MustRegister(a.registry)

	shutdown, err := tracing.Init(cmd.Context(), "fabricctl", Version, a.settings.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) loadConfig() error {
	v := a.v
	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".fabricctl")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	s := settings{Client: fabricbridge.DefaultConfig()}
	if err := v.Unmarshal(&s); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	a.settings = s
	return nil
}

// close releases what init set up. It is a no-op when init did not run.
func (a *app) close(ctx context.Context) error {
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("flushing traces failed", "error", err)
		}
	}
	if a.settings.MetricsFile != "" && a.registry != nil {
		if err := os.MkdirAll(filepath.Dir(a.settings.MetricsFile), 0o755); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
		if err := prometheus.WriteToTextfile(a.settings.MetricsFile, a.registry); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

func (a *app) tokenProvider() (fabricbridge.TokenProvider, error) {
	if a.tokens != nil {
		return a.tokens, nil
	}
	if a.settings.Token != "" {
		return auth.StaticTokens{Default: a.settings.Token}, nil
	}
	if a.settings.Auth.TenantID == "" && a.settings.Auth.ClientID == "" {
		return nil, errors.New("no credentials: set --token or a service principal (--tenant-id, --client-id)")
	}
	return auth.NewSPNTokenProvider(a.settings.Auth)
}

func (a *app) client() (*fabricbridge.Client, error) {
	tokens, err := a.tokenProvider()
	if err != nil {
		return nil, err
	}
	return fabricbridge.NewClient(a.settings.Client, tokens,
		fabricbridge.WithLogger(a.logger.Named("client")))
}

func (a *app) fabric() (*adapters.FabricAdapter, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return adapters.NewFabricAdapter(c, a.settings.FabricURL), nil
}

func (a *app) powerBI() (*adapters.PowerBIAdapter, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return adapters.NewPowerBIAdapter(c, a.settings.PowerBIURL), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
