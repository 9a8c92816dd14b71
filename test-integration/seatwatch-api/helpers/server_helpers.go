// Package helpers provides the fixtures of the integration suite
package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	"github.com/stacklok/seatwatch/internal/api"
	seatwatchapp "github.com/stacklok/seatwatch/internal/app"
	"github.com/stacklok/seatwatch/internal/config"
	"github.com/stacklok/seatwatch/internal/monitor"
	"github.com/stacklok/seatwatch/internal/notify"
)

// TriggerToken is the scheduler secret written by WriteConfigYAML
const TriggerToken = "integration-secret"

// ServerTestHelper manages the seatwatch server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *seatwatchapp.SeatwatchApp
	transport  notify.Transport
}

// NewServerTestHelper creates a helper for the config at configPath. A nil
// transport lets the app build the one named in the config.
func NewServerTestHelper(ctx context.Context, configPath string, transport notify.Transport) (*ServerTestHelper, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    fmt.Sprintf("127.0.0.1:%d", port),
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		transport:  transport,
	}, nil
}

// StartServer builds the app from the config file and starts it in the background
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := []seatwatchapp.SeatwatchAppOptions{
		seatwatchapp.WithConfig(cfg),
		seatwatchapp.WithAddress(s.address),
	}
	if s.transport != nil {
		opts = append(opts, seatwatchapp.WithTransport(s.transport))
	}

	app, err := seatwatchapp.NewSeatwatchApp(s.ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			// the test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()
	return nil
}

// StopServer gracefully stops the server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/health")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 200*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// User is a caller identified through the identity headers
type User struct {
	ID     string
	Email  string
	Groups string
}

func (u User) headers() map[string]string {
	return map[string]string{
		api.HeaderUserID:     u.ID,
		api.HeaderUserEmail:  u.Email,
		api.HeaderUserGroups: u.Groups,
	}
}

// TrackCourse makes a POST request to /courses as u
func (s *ServerTestHelper) TrackCourse(u User, crn string, year int, semester string) (*http.Response, error) {
	return s.do(http.MethodPost, "/courses", api.TrackRequest{CRN: crn, Year: year, Semester: semester}, u.headers())
}

// ListCourses makes a GET request to /courses as u
func (s *ServerTestHelper) ListCourses(u User) (*http.Response, error) {
	return s.do(http.MethodGet, "/courses", nil, u.headers())
}

// Subscribe makes a POST request to /notifications/subscribe as u
func (s *ServerTestHelper) Subscribe(u User, phone string) (*http.Response, error) {
	return s.do(http.MethodPost, "/notifications/subscribe", api.SubscribeRequest{PhoneNumber: phone}, u.headers())
}

// CheckAll makes a POST request to /courses/check as u
func (s *ServerTestHelper) CheckAll(u User) (*http.Response, error) {
	return s.do(http.MethodPost, "/courses/check", nil, u.headers())
}

// TriggerCycle makes a POST request to /check-courses with token
func (s *ServerTestHelper) TriggerCycle(token string) (*http.Response, error) {
	headers := map[string]string{}
	if token != "" {
		headers[api.HeaderTriggerToken] = token
	}
	return s.do(http.MethodPost, "/check-courses", nil, headers)
}

// RunCycle triggers a cycle and decodes its summary
func (s *ServerTestHelper) RunCycle() *monitor.Summary {
	resp, err := s.TriggerCycle(TriggerToken)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK))

	var body api.CycleResponse
	DecodeResponse(resp, &body)
	gomega.Expect(body.Summary).NotTo(gomega.BeNil())
	return body.Summary
}

func (s *ServerTestHelper) do(method, path string, body any, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.httpClient.Do(req)
}

// DecodeResponse decodes the JSON body of resp into v and closes it
func DecodeResponse(resp *http.Response, v any) {
	defer func() {
		_ = resp.Body.Close()
	}()
	gomega.Expect(json.NewDecoder(resp.Body).Decode(v)).To(gomega.Succeed())
}

// ConfigOptions holds the settings written by WriteConfigYAML
type ConfigOptions struct {
	RegistrarURL string
	Transport    string
	RedisAddr    string
}

// WriteConfigYAML writes a configuration file for testing and returns its path
func WriteConfigYAML(dir string, opts ConfigOptions) string {
	transport := opts.Transport
	if transport == "" {
		transport = config.TransportMemory
	}

	content := fmt.Sprintf(`source:
  type: html
  html:
    baseURL: %s
  timeout: 5s

monitor:
  interval: 24h
  concurrency: 2

storage:
  type: memory

notification:
  transport: %s
  topic: course-notifications
`, opts.RegistrarURL, transport)

	if opts.RedisAddr != "" {
		content += fmt.Sprintf("  redis:\n    addr: %s\n", opts.RedisAddr)
	}
	content += fmt.Sprintf("\nauth:\n  adminGroup: admin\n  triggerToken: %s\n", TriggerToken)

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(content), 0600)).To(gomega.Succeed())
	return path
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer func() {
		_ = l.Close()
	}()
	return l.Addr().(*net.TCPAddr).Port, nil
}
