package forwarder

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/BurntSushi/toml"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jd3nn1s/autoboat"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	mqttTimeout       = 2 * time.Second
	disconnectQuiesce = 250
)

var ErrInvalidCommand = errors.New("invalid command")

type MQTTConfig struct {
	Broker         string
	ClientID       string
	TelemetryTopic string
	CommandTopic   string
	QoS            byte
}

func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		ClientID:       "autoboat",
		TelemetryTopic: "autoboat/telemetry",
		CommandTopic:   "autoboat/command",
	}
}

// CommandSink receives operator commands decoded from the command topic.
type CommandSink interface {
	Submit(cmd autoboat.Command) bool
}

var newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
	return mqtt.NewClient(opts)
}

// MQTTForwarder publishes telemetry as JSON and feeds commands published on
// the command topic to its sink.
type MQTTForwarder struct {
	Config *MQTTConfig

	client  mqtt.Client
	sink    CommandSink
	fwdChan chan *autoboat.Telemetry
}

func NewMQTTForwarder(fileName string, sink CommandSink) (*MQTTForwarder, error) {
	file, err := openConfig(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return NewMQTTForwarderFromReader(file, sink)
}

// NewMQTTForwarderFromReader connects to the broker and subscribes to the
// command topic. A nil sink disables command intake.
func NewMQTTForwarderFromReader(configReader io.Reader, sink CommandSink) (*MQTTForwarder, error) {
	config := defaultMQTTConfig()
	if _, err := toml.NewDecoder(configReader).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "unable to load mqtt forwarder configuration")
	}
	if config.Broker == "" {
		return nil, errors.New("mqtt forwarder configuration has no broker")
	}
	if config.QoS > 2 {
		return nil, errors.Errorf("mqtt qos must be 0, 1 or 2, got %d", config.QoS)
	}

	m := &MQTTForwarder{
		Config:  &config,
		sink:    sink,
		fwdChan: make(chan *autoboat.Telemetry, 1),
	}
	if err := m.connect(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MQTTForwarder) connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.Config.Broker).
		SetClientID(m.Config.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout)
	if m.sink != nil {
		// subscriptions do not survive a reconnect with a clean session
		opts.SetOnConnectHandler(func(c mqtt.Client) {
			if err := m.subscribe(c); err != nil {
				log.WithField("err", err).Error("unable to subscribe to command topic")
			}
		})
	}
	m.client = newClient(opts)

	token := m.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return errors.Errorf("timed out connecting to mqtt broker %s", m.Config.Broker)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "unable to connect to mqtt broker %s", m.Config.Broker)
	}
	log.WithField("broker", m.Config.Broker).Info("connected to mqtt broker")
	return nil
}

func (m *MQTTForwarder) subscribe(c mqtt.Client) error {
	token := c.Subscribe(m.Config.CommandTopic, m.Config.QoS, m.onCommand)
	if !token.WaitTimeout(mqttTimeout) {
		return errors.Errorf("timed out subscribing to %s", m.Config.CommandTopic)
	}
	if err := token.Error(); err != nil {
		return err
	}
	log.WithField("topic", m.Config.CommandTopic).Info("subscribed to command topic")
	return nil
}

func (m *MQTTForwarder) onCommand(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := decodeCommand(msg.Payload())
	if err != nil {
		log.WithFields(log.Fields{
			"topic": msg.Topic(),
			"err":   err,
		}).Warn("ignoring command")
		return
	}
	log.WithField("cmd", cmd.Kind).Debug("command received")
	m.sink.Submit(cmd)
}

func decodeCommand(payload []byte) (autoboat.Command, error) {
	var cmd autoboat.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return autoboat.Command{}, errors.Wrap(ErrInvalidCommand, err.Error())
	}
	if cmd.Kind == "" {
		return autoboat.Command{}, errors.Wrap(ErrInvalidCommand, "missing cmd")
	}
	return cmd, nil
}

func (m *MQTTForwarder) Close() error {
	m.client.Disconnect(disconnectQuiesce)
	return nil
}

func (m *MQTTForwarder) Forward(newTelemetry *autoboat.Telemetry, _ *autoboat.Telemetry) error {
	telemCopy := *newTelemetry
	select {
	case m.fwdChan <- &telemCopy:
	default:
	}
	return nil
}

func (m *MQTTForwarder) Start(ctx context.Context) error {
	limiter := time.NewTicker(sendInterval)
	defer limiter.Stop()
	for {
		select {
		case <-limiter.C:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case t := <-m.fwdChan:
			if err := m.publish(t); err != nil {
				log.WithField("err", err).Error("unable to publish telemetry")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *MQTTForwarder) publish(telem *autoboat.Telemetry) error {
	payload, err := json.Marshal(telem)
	if err != nil {
		return errors.Wrap(err, "unable to encode telemetry")
	}
	token := m.client.Publish(m.Config.TelemetryTopic, m.Config.QoS, false, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return errors.Errorf("timed out publishing to %s", m.Config.TelemetryTopic)
	}
	return token.Error()
}
