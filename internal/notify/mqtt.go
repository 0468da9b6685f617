package notify

import (
	"context"
	"encoding/json"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTPublisher pushes events to <topic>/<event-type> at QoS 0. The kiosk
// dashboard and the downstream session manager subscribe to the subtree.
type MQTTPublisher struct {
	Client mqtt.Client
	Topic  string
	Logger *zap.Logger
}

func (p *MQTTPublisher) Publish(_ context.Context, ev Event) {
	if p == nil || p.Client == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn("event marshal failed", zap.Error(err))
		}
		return
	}
	topic := p.Topic + "/" + ev.Type
	token := p.Client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil && p.Logger != nil {
		p.Logger.Warn("event publish failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}
