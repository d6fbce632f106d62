// Package probe checks that an installed sidecar answers on its HTTP and
// gRPC endpoints.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/isometry/thanos-sidecar/pkg/netutil"
	"github.com/isometry/thanos-sidecar/pkg/runctx"
	"github.com/isometry/thanos-sidecar/pkg/sidecar"
)

const (
	TypeHTTP = "http"
	TypeGRPC = "grpc"

	// ReadyPath is the sidecar's readiness endpoint.
	ReadyPath = "/-/ready"
)

// Result is the outcome of one probe.
type Result struct {
	Type     string        `json:"type" yaml:"type"`
	Address  string        `json:"address" yaml:"address"`
	Ready    bool          `json:"ready" yaml:"ready"`
	Skipped  bool          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", r.Type),
		slog.String("address", r.Address),
		slog.Bool("ready", r.Ready),
		slog.Bool("skipped", r.Skipped),
		slog.String("message", r.Message),
		slog.Duration("duration", r.Duration),
	)
}

// NotReadyError lists the probes that did not succeed.
type NotReadyError struct {
	Results []Result
}

func (e *NotReadyError) Error() string {
	var failed []string
	for _, r := range e.Results {
		if !r.Ready && !r.Skipped {
			failed = append(failed, fmt.Sprintf("%s %s: %s", r.Type, r.Address, r.Message))
		}
	}
	return "sidecar not ready: " + strings.Join(failed, "; ")
}

// Prober probes a running sidecar.
type Prober struct {
	Timeout time.Duration
	// Insecure skips certificate verification on the gRPC endpoint.
	Insecure bool
	// ServerName is verified against the gRPC server certificate in place of
	// the dialled host, which is loopback for wildcard listeners.
	ServerName string
	// RootCAs verifies the gRPC server certificate; nil uses the system pool.
	RootCAs *x509.CertPool

	httpClient *http.Client
}

type Option func(*Prober)

func WithTimeout(timeout time.Duration) Option {
	return func(p *Prober) {
		p.Timeout = timeout
	}
}

func WithInsecure(insecure bool) Option {
	return func(p *Prober) {
		p.Insecure = insecure
	}
}

func WithServerName(name string) Option {
	return func(p *Prober) {
		p.ServerName = name
	}
}

func WithRootCAs(pool *x509.CertPool) Option {
	return func(p *Prober) {
		p.RootCAs = pool
	}
}

// LoadRootCAs reads a PEM bundle for WithRootCAs.
func LoadRootCAs(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CA bundle")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// WithHTTPClient replaces the HTTP client used for the readiness probe.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Prober) {
		p.httpClient = client
	}
}

func New(opts ...Option) *Prober {
	p := &Prober{Timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	return p
}

// Probe runs the HTTP and gRPC probes concurrently. It returns a
// *NotReadyError when any probe that ran failed.
func (p *Prober) Probe(ctx context.Context, d *sidecar.ServiceDescriptor) ([]Result, error) {
	results := make([]Result, 2)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results[0] = p.probeHTTP(gctx, d)
		return nil
	})
	g.Go(func() error {
		results[1] = p.probeGRPC(gctx, d)
		return nil
	})
	_ = g.Wait()

	log := runctx.Logger(ctx, slog.String("context", "probe"))
	for _, r := range results {
		log.Debug("probe result", slog.Any("result", r))
		if !r.Ready && !r.Skipped {
			return results, &NotReadyError{Results: results}
		}
	}
	return results, nil
}

// Wait probes every interval until the sidecar is ready or ctx ends, and
// returns the last results.
func (p *Prober) Wait(ctx context.Context, d *sidecar.ServiceDescriptor, interval time.Duration) ([]Result, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		results, err := p.Probe(ctx, d)
		if err == nil {
			return results, nil
		}
		select {
		case <-ctx.Done():
			return results, err
		case <-ticker.C:
		}
	}
}

func flagString(d *sidecar.ServiceDescriptor, name string) string {
	value, ok := d.Flags.Get(name)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

func (p *Prober) probeHTTP(ctx context.Context, d *sidecar.ServiceDescriptor) Result {
	result := Result{Type: TypeHTTP}
	start := time.Now()

	address, err := netutil.DialAddress(flagString(d, "http-address"))
	if err != nil {
		result.Message = fmt.Sprintf("invalid http-address: %v", err)
		return finish(result, start)
	}
	result.Address = address

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+ReadyPath, nil)
	if err != nil {
		result.Message = err.Error()
		return finish(result, start)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		result.Message = err.Error()
		return finish(result, start)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Message = resp.Status
		return finish(result, start)
	}
	result.Ready = true
	return finish(result, start)
}

func (p *Prober) probeGRPC(ctx context.Context, d *sidecar.ServiceDescriptor) Result {
	result := Result{Type: TypeGRPC}
	start := time.Now()

	address, err := netutil.DialAddress(flagString(d, "grpc-address"))
	if err != nil {
		result.Message = fmt.Sprintf("invalid grpc-address: %v", err)
		return finish(result, start)
	}
	result.Address = address

	if d.Flags.Has("grpc-server-tls-client-ca") {
		result.Skipped = true
		result.Message = "server requires client certificates"
		return finish(result, start)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	creds := insecure.NewCredentials()
	if d.TLSEnabled() {
		serverName := p.ServerName
		if serverName == "" {
			serverName, _, _ = net.SplitHostPort(address)
		}
		creds = credentials.NewTLS(&tls.Config{
			ServerName:         serverName,
			RootCAs:            p.RootCAs,
			InsecureSkipVerify: p.Insecure,
		})
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(creds))
	if err != nil {
		result.Message = err.Error()
		return finish(result, start)
	}
	defer conn.Close()

	response, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		result.Message = err.Error()
		return finish(result, start)
	}
	if response.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		result.Message = response.GetStatus().String()
		return finish(result, start)
	}
	result.Ready = true
	return finish(result, start)
}

func finish(r Result, start time.Time) Result {
	r.Duration = time.Since(start)
	return r
}
