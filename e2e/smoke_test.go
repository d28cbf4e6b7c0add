//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."   // relative to ./e2e
const mainPkgRel = "./cmd" // main.go lives in cmd/

const mqttPort = nat.Port("1883/tcp")

func TestSmoke_MQTTRoundTrip(t *testing.T) {
	repoRoot := repoRootPath(t)
	brokerHost, brokerPort := startMosquitto(t)

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=debug",
		"HTTP_ADDR="+addr,
		"SQLITE_PATH="+filepath.Join(t.TempDir(), "humidity.db"),
		"MQTT_BROKER="+brokerHost,
		"MQTT_PORT="+brokerPort,
		"MQTT_CLIENT_ID=humidity-e2e",
		"NODE_NAME=e2e",
		"FORMULA=wetterochs",
		"TEMPERATURE_TOPIC=sensors/temp",
		"HUMIDITY_TOPIC=sensors/hum",
		"MQTT_INPUT_TOPIC=sensors/#",
		"MQTT_OUTPUT_TOPIC=humidity/e2e",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 2 * time.Second}
	base := "http://" + addr

	waitForHealth(t, client, base+"/healthz", "connected", 15*time.Second)

	out := subscribeOutput(t, brokerHost, brokerPort, "humidity/e2e")
	pub := newMQTTClient(t, brokerHost, brokerPort, "humidity-e2e-publisher")

	// The service subscribes from its connect handler; re-send the pair
	// until it answers.
	var got map[string]any
	deadline := time.After(15 * time.Second)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	publishPair(t, pub)
loop:
	for {
		select {
		case payload := <-out:
			if err := json.Unmarshal(payload, &got); err != nil {
				t.Fatalf("output is not json: %v (%s)", err, payload)
			}
			break loop
		case <-tick.C:
			publishPair(t, pub)
		case <-deadline:
			t.Fatal("no output message received")
		}
	}

	if got["dewPoint"] != 15.43 || got["absoluteHumidity"] != 12.96 {
		t.Fatalf("output = %v, want dewPoint 15.43 absoluteHumidity 12.96", got)
	}
	if got["topic"] != "sensors/hum" {
		t.Errorf("topic = %v, want sensors/hum", got["topic"])
	}

	var readings []map[string]any
	getJSON(t, client, base+"/api/nodes/e2e/readings?limit=1", &readings)
	if len(readings) != 1 || readings[0]["dewPoint"] != 15.43 {
		t.Errorf("readings = %v", readings)
	}

	metrics := getText(t, client, base+"/metrics")
	if !strings.Contains(metrics, `humidity_messages_total{node="e2e",outcome="emitted"}`) {
		t.Errorf("metrics missing emitted counter:\n%s", metrics)
	}

	stopServer(t, cmd)
}

func startMosquitto(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{string(mqttPort)},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},

		// Keep broker persistence off the container's writable layer.
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Tmpfs = map[string]string{"/mosquitto/data": "rw"}
		},
		WaitingFor: wait.ForListeningPort(mqttPort).WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, mqttPort)
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return host, port.Port()
}

func newMQTTClient(t *testing.T, host, port, id string) paho.Client {
	t.Helper()

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%s", host, port)).
		SetClientID(id).
		SetCleanSession(true)
	c := paho.NewClient(opts)
	if tok := c.Connect(); !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("connect %s: %v", id, tok.Error())
	}
	t.Cleanup(func() { c.Disconnect(250) })
	return c
}

func subscribeOutput(t *testing.T, host, port, topic string) <-chan []byte {
	t.Helper()

	out := make(chan []byte, 16)
	c := newMQTTClient(t, host, port, "humidity-e2e-listener")
	tok := c.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		out <- m.Payload()
	})
	if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("subscribe %s: %v", topic, tok.Error())
	}
	return out
}

func publishPair(t *testing.T, c paho.Client) {
	t.Helper()

	for _, m := range []struct{ topic, payload string }{
		{"sensors/temp", "20"},
		{"sensors/hum", "75"},
	} {
		tok := c.Publish(m.topic, 1, false, m.payload)
		if !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
			t.Fatalf("publish %s: %v", m.topic, tok.Error())
		}
	}
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}
	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), "cloudpico-humidity")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}
	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func waitForHealth(t *testing.T, client *http.Client, url, mqttState string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			var body map[string]string
			decErr := json.NewDecoder(resp.Body).Decode(&body)
			_ = resp.Body.Close()
			if decErr == nil && resp.StatusCode == http.StatusOK && body["mqtt"] == mqttState {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("service not healthy (mqtt=%s) after %s: %s", mqttState, timeout, url)
}

func getJSON(t *testing.T, client *http.Client, url string, out any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status=%d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func getText(t *testing.T, client *http.Client, url string) string {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return string(b)
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("service did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("service exited non-zero: %v", err)
			}
			t.Fatalf("service wait error: %v", err)
		}
	}
}
