package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Octogonapus/diskbench/target"
	"github.com/hashicorp/go-version"
)

type kubectlVersionOutput struct {
	ClientVersion struct {
		GitVersion string `json:"gitVersion"`
	} `json:"clientVersion"`
}

// Checks that the kubectl client on the target is at least minVersion. An empty minVersion skips the check.
func CheckKubectlVersion(ctx context.Context, t target.Target, binary string, minVersion string) error {
	if minVersion == "" {
		return nil
	}
	constraint, err := version.NewConstraint(">= " + minVersion)
	if err != nil {
		return fmt.Errorf("can't parse minimum kubectl version: %w", err)
	}

	out, err := t.RunCommand(ctx, binary, "version", "--client", "-o", "json")
	if err != nil {
		return fmt.Errorf("failed to get kubectl version: %w", err)
	}
	clientVersion, err := ParseKubectlClientVersion(out)
	if err != nil {
		return err
	}
	slog.Debug("kubectl client version", slog.String("version", clientVersion.String()))

	if !constraint.Check(clientVersion) {
		return fmt.Errorf("kubectl %s is older than the required %s", clientVersion, minVersion)
	}
	return nil
}

func ParseKubectlClientVersion(out []byte) (*version.Version, error) {
	parsed := kubectlVersionOutput{}
	err := json.Unmarshal(out, &parsed)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling kubectl version output failed: %w", err)
	}
	gitVersion := strings.TrimPrefix(parsed.ClientVersion.GitVersion, "v")
	if gitVersion == "" {
		return nil, fmt.Errorf("kubectl version output has no client version")
	}
	return version.NewVersion(gitVersion)
}
