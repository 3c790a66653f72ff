package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/skylink/core/fleet"
)

func waitForMQTTReady(broker string, timeout time.Duration) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		lastErr = token.Error()
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for broker")
	}
	return lastErr
}

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())
	if err := waitForMQTTReady(broker, 5*time.Second); err != nil {
		t.Skipf("mosquitto not ready at %s: %v", broker, err)
	}
	return cont, broker
}

func TestStatusAndCommandsWithMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	cont, broker := startMosquitto(ctx, t)
	defer func() { _ = cont.Terminate(ctx) }()

	cli, err := NewPahoClient(Config{Broker: broker, ClientID: "gcs"}, nil, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer cli.Disconnect()

	sender := &fakeSender{}
	intake := NewCommandIntake(cli, cli.Topics(), sender, nil)
	if err := intake.Start(ctx); err != nil {
		t.Fatalf("intake: %v", err)
	}
	pub := NewStatusPublisher(cli, cli.Topics(), staticSource{5: {SysID: 5, FlightMode: "AUTO"}}, nil, time.Second, nil)
	if err := pub.PublishSnapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	obs := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("observer"))
	if token := obs.Connect(); token.Wait() && token.Error() != nil {
		t.Fatalf("observer connect: %v", token.Error())
	}
	defer obs.Disconnect(100)

	statuses := make(chan fleet.Status, 1)
	results := make(chan CommandResult, 1)
	obs.Subscribe("skylink/vehicle/5/status", 1, func(_ paho.Client, m paho.Message) {
		var st fleet.Status
		if json.Unmarshal(m.Payload(), &st) == nil {
			statuses <- st
		}
	}).Wait()
	obs.Subscribe("skylink/vehicle/5/command/result", 1, func(_ paho.Client, m paho.Message) {
		var res CommandResult
		if json.Unmarshal(m.Payload(), &res) == nil {
			results <- res
		}
	}).Wait()

	select {
	case st := <-statuses:
		if st.FlightMode != "AUTO" {
			t.Fatalf("retained status = %+v", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("retained status not delivered")
	}

	obs.Publish("skylink/vehicle/5/command", 1, false, `{"command_id":"e2e","kind":"arm"}`).Wait()
	select {
	case res := <-results:
		if res.CommandID != "e2e" || res.Outcome != "ok" {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("command result not delivered")
	}
	intake.Wait()
}
