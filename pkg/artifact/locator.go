// pkg/artifact/locator.go

package artifact

import (
	"net/http"
	"path"
	"path/filepath"
	"regexp"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Reference is a resolved download: where to fetch from and where to write.
type Reference struct {
	Version  string
	Filename string
	URL      string
	Dest     string
}

// Locator finds the platform installer of a version on the mirror listing.
type Locator struct {
	Client      *http.Client
	BaseURL     string
	Product     string
	Platform    string
	DownloadDir string
}

// ListingURL is the directory page of version.
func (l *Locator) ListingURL(version string) string {
	return joinURL(l.BaseURL, version) + "/"
}

// Pattern matches <Product>-<version>-<build>-<Platform> for exactly version.
func (l *Locator) Pattern(version string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(l.Product) + "-" +
		regexp.QuoteMeta(version) + `-\d+-` + regexp.QuoteMeta(l.Platform))
}

// Dest is the local path the installer of version is written to. It is the
// same on every run, so a previous download is overwritten.
func (l *Locator) Dest(version string) string {
	return filepath.Join(l.DownloadDir, l.Product+"-"+version+path.Ext(l.Platform))
}

// Locate fetches the listing of version and extracts the installer filename.
// A page without a match is a pattern-not-found error, not a network error.
func (l *Locator) Locate(rc *vm_io.RuntimeContext, version string) (Reference, error) {
	log := otelzap.Ctx(rc.Ctx)
	listing := l.ListingURL(version)
	ctx, span := telemetry.Start(rc.Ctx, "artifact.Locate",
		attribute.String("url", listing),
		attribute.String("version", version))
	defer span.End()

	log.Info("Locating installer", zap.String("listing", listing), zap.String("version", version))

	body, err := fetch(ctx, l.Client, listing, maxListingBody)
	if err != nil {
		span.RecordError(err)
		return Reference{}, err
	}

	re := l.Pattern(version)
	filename := re.FindString(body)
	if filename == "" {
		return Reference{}, vm_err.NewPatternNotFoundError(re.String(), listing)
	}

	ref := Reference{
		Version:  version,
		Filename: filename,
		URL:      listing + filename,
		Dest:     l.Dest(version),
	}
	log.Info("Installer located", zap.String("url", ref.URL), zap.String("dest", ref.Dest))
	return ref, nil
}
