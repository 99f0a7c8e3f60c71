package cli

import (
	"context"
	"os"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"
)

// LogLevelEnv sets the CLI log level, e.g. IPACTL_LOG=debug. Nothing is
// logged when it is unset. The library subsystem follows FREEIPA_LOG when set.
const LogLevelEnv = EnvPrefix + "_LOG"

// initializeLogging installs the root logger writing to stderr and tags
// every entry with the running command.
func initializeLogging(ctx context.Context, command, version string) context.Context {
	if os.Getenv(LogLevelEnv) == "" {
		return ctx
	}

	ctx = tfsdklog.NewRootProviderLogger(ctx,
		tfsdklog.WithLogName("ipactl"),
		tfsdklog.WithLevelFromEnv(LogLevelEnv),
		tfsdklog.WithoutLocation(),
	)
	ctx = tflog.SetField(ctx, "command", command)
	ctx = tflog.SetField(ctx, "ipactl_version", version)

	tflog.Debug(ctx, "ipactl logging configured")
	return ctx
}
