package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gameforge/forge/internal/backend"
)

// Reasoner is implemented by backends that can explain why they resolved
// unavailable.
type Reasoner interface {
	Reason() string
}

// BackendChecks builds one probe per registered backend, in fallback order.
// An unavailable backend is a warning rather than a failure because the
// orchestrator only needs one live backend to serve requests.
func BackendChecks(backends []backend.Backend) []Check {
	checks := make([]Check, 0, len(backends))
	for priority, candidate := range backends {
		checks = append(checks, backendCheck(candidate, priority+1))
	}
	return checks
}

func backendCheck(candidate backend.Backend, priority int) Check {
	return Check{
		Name: "backend:" + candidate.Name(),
		Run: func(context.Context) Finding {
			if candidate.Available() {
				review := "generate only"
				if candidate.SupportsReview() {
					review = "generate and review"
				}
				return Finding{
					Status: StatusPass,
					Detail: fmt.Sprintf("available at priority %d (%s)", priority, review),
				}
			}
			detail := "unavailable"
			if reasoner, ok := candidate.(Reasoner); ok && reasoner.Reason() != "" {
				detail = reasoner.Reason()
			}
			return Finding{Status: StatusWarn, Detail: detail}
		},
	}
}

// OutputDirCheck verifies the game output directory exists and is writable
// by creating and removing a probe file inside it.
func OutputDirCheck(dir string) Check {
	return Check{
		Name: "output-dir",
		Run: func(context.Context) Finding {
			if strings.TrimSpace(dir) == "" {
				return Finding{Status: StatusFail, Detail: "output directory is not configured"}
			}
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return Finding{Status: StatusFail, Detail: fmt.Sprintf("create %s: %v", dir, err)}
			}
			probe, err := os.CreateTemp(dir, defaultProbePrefix)
			if err != nil {
				return Finding{Status: StatusFail, Detail: fmt.Sprintf("not writable: %v", err)}
			}
			name := probe.Name()
			_ = probe.Close()
			_ = os.Remove(name)
			return Finding{Status: StatusPass, Detail: fmt.Sprintf("writable at %s", dir)}
		},
	}
}

// EndpointCheck probes an HTTP endpoint for reachability. Any HTTP response
// counts as reachable; only transport errors fail, since authenticated
// endpoints reject anonymous probes with a status code.
func EndpointCheck(name, rawURL string, client *http.Client) Check {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return Check{
		Name: name,
		Run: func(ctx context.Context) Finding {
			if strings.TrimSpace(rawURL) == "" {
				return Finding{Status: StatusWarn, Detail: "no endpoint configured"}
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
			if err != nil {
				return Finding{Status: StatusFail, Detail: fmt.Sprintf("bad endpoint %s: %v", rawURL, err)}
			}
			resp, err := client.Do(req)
			if err != nil {
				return Finding{Status: StatusFail, Detail: fmt.Sprintf("unreachable: %v", err)}
			}
			defer resp.Body.Close()
			return Finding{
				Status: StatusPass,
				Detail: fmt.Sprintf("reachable (HTTP %d)", resp.StatusCode),
			}
		},
	}
}

// ScratchCheck reports leftover bridge scratch directories found by scan.
// Orphans accumulate when a bridge subprocess dies before cleanup.
func ScratchCheck(scan func(ctx context.Context) ([]string, error)) Check {
	return Check{
		Name: "scratch-dirs",
		Run: func(ctx context.Context) Finding {
			orphans, err := scan(ctx)
			if err != nil {
				return Finding{Status: StatusFail, Detail: fmt.Sprintf("scan scratch dirs: %v", err)}
			}
			if len(orphans) == 0 {
				return Finding{Status: StatusPass, Detail: "no orphan scratch directories"}
			}
			return Finding{
				Status: StatusWarn,
				Detail: fmt.Sprintf("%d orphan scratch directories; run forge doctor --sweep", len(orphans)),
			}
		},
	}
}

// ArchiveCheck pings the session archive database.
func ArchiveCheck(ping func(ctx context.Context) error) Check {
	return Check{
		Name: "session-archive",
		Run: func(ctx context.Context) Finding {
			if ping == nil {
				return Finding{Status: StatusWarn, Detail: "archive not configured"}
			}
			if err := ping(ctx); err != nil {
				return Finding{Status: StatusFail, Detail: fmt.Sprintf("archive unreachable: %v", err)}
			}
			return Finding{Status: StatusPass, Detail: "archive reachable"}
		},
	}
}

// ConfigFileCheck reports whether a config file is present at path. Absence
// is a pass because every setting has a default.
func ConfigFileCheck(path string) Check {
	return Check{
		Name: "config-file",
		Run: func(context.Context) Finding {
			info, err := os.Stat(path)
			if err != nil {
				return Finding{Status: StatusPass, Detail: fmt.Sprintf("%s not present; using defaults", path)}
			}
			if info.IsDir() {
				return Finding{Status: StatusFail, Detail: fmt.Sprintf("%s is a directory", path)}
			}
			return Finding{Status: StatusPass, Detail: fmt.Sprintf("loaded %s", path)}
		},
	}
}
