// pkg/artifact/resolver.go
//
// Discovery and download of the third-party installer the OVA build needs.
// Every run resolves whatever the mirror currently advertises as latest; there
// is no pinning and no checksum verification.

package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-version"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxVersionBody bounds how much of the version resource is read.
const maxVersionBody = 4 << 10

// maxListingBody bounds how much of a listing page is read.
const maxListingBody = 4 << 20

// Resolver discovers the latest stable version string.
type Resolver struct {
	Client     *http.Client
	BaseURL    string
	LatestFile string
}

// URL is the version resource location. Without LatestFile, BaseURL is the
// resource itself.
func (r *Resolver) URL() string {
	if r.LatestFile == "" {
		return r.BaseURL
	}
	return joinURL(r.BaseURL, r.LatestFile)
}

// Resolve fetches the version resource and returns its trimmed content.
// Transport failures, non-2xx statuses, empty bodies and strings that do not
// parse as a version are all discovery errors.
func (r *Resolver) Resolve(rc *vm_io.RuntimeContext) (string, error) {
	log := otelzap.Ctx(rc.Ctx)
	url := r.URL()
	ctx, span := telemetry.Start(rc.Ctx, "artifact.Resolve", attribute.String("url", url))
	defer span.End()

	log.Info("Resolving latest version", zap.String("url", url))

	body, err := fetch(ctx, r.Client, url, maxVersionBody)
	if err != nil {
		span.RecordError(err)
		return "", vm_err.NewDiscoveryError("failed to discover latest version from "+url, err)
	}

	v := strings.TrimSpace(body)
	if v == "" {
		return "", vm_err.NewDiscoveryError("version resource "+url+" is empty", nil)
	}
	if _, err := version.NewVersion(v); err != nil {
		return "", vm_err.NewDiscoveryError(fmt.Sprintf("version resource %s returned %q", url, v), err)
	}

	span.SetAttributes(attribute.String("version", v))
	log.Info("Latest version resolved", zap.String("version", v))
	return v, nil
}

// fetch GETs url and returns at most limit bytes of the body. Transport
// failures and non-2xx statuses are network errors.
func fetch(ctx context.Context, client *http.Client, url string, limit int64) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", vm_err.NewInternalError("build request for "+url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", vm_err.NewNetworkError("GET "+url+" failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", vm_err.NewNetworkError("GET "+url+" failed",
			cerr.Newf("unexpected status %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", vm_err.NewNetworkError("read body of "+url, err)
	}
	return string(data), nil
}

func joinURL(base, elem string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(elem, "/")
}
