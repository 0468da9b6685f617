package pulse

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// edgePayload is what the GPIO bridge publishes per detected edge on
// kiosk/acceptor/<slot>/edge. Error is set when the bridge failed to read
// the line; such a message aborts the slot's open train.
type edgePayload struct {
	Slot      int    `json:"slot"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MQTTEdgeSource subscribes to the acceptor edge topic and feeds the
// interpreter. The MQTT callback never blocks: when the buffer is full the
// edge is dropped and counted, which at worst loses one pulse train, never a
// committed queue entry.
type MQTTEdgeSource struct {
	Client mqtt.Client
	Topic  string
	Logger *zap.Logger
}

func (s *MQTTEdgeSource) Subscribe(out chan<- Edge) error {
	if s == nil || s.Client == nil {
		return errors.New("mqtt client not configured")
	}
	token := s.Client.Subscribe(s.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		edge, err := decodeEdge(msg.Payload())
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("bad edge payload",
					zap.String("topic", msg.Topic()),
					zap.Error(err),
				)
			}
			return
		}
		select {
		case out <- edge:
		default:
			if s.Logger != nil {
				s.Logger.Warn("edge buffer full, edge dropped", zap.Int("slot", edge.Slot))
			}
		}
	})
	token.Wait()
	return token.Error()
}

func decodeEdge(data []byte) (Edge, error) {
	var p edgePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Edge{}, err
	}
	if p.Slot <= 0 {
		return Edge{}, fmt.Errorf("invalid slot number %d", p.Slot)
	}
	edge := Edge{Slot: p.Slot}
	if p.Error != "" {
		edge.Err = errors.New(p.Error)
		return edge, nil
	}
	if p.Timestamp != "" {
		at, err := time.Parse(time.RFC3339Nano, p.Timestamp)
		if err != nil {
			return Edge{}, err
		}
		edge.At = at.UTC()
	} else {
		edge.At = time.Now().UTC()
	}
	return edge, nil
}

// MQTTAcknowledger pulses the feedback indicator by publishing to
// <prefix>/<slot>/ack.
type MQTTAcknowledger struct {
	Client      mqtt.Client
	TopicPrefix string
	Logger      *zap.Logger
}

func (a *MQTTAcknowledger) Acknowledge(slotNumber int) {
	if a == nil || a.Client == nil {
		return
	}
	topic := fmt.Sprintf("%s/%d/ack", a.TopicPrefix, slotNumber)
	payload, _ := json.Marshal(map[string]any{
		"slot": slotNumber,
		"at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	token := a.Client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil && a.Logger != nil {
		a.Logger.Warn("ack publish failed", zap.Int("slot", slotNumber), zap.Error(err))
	}
}
