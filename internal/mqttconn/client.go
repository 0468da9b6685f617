package mqttconn

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"coinkiosk/internal/config"
)

// Connect dials the broker shared by the edge source, the ack indicator and
// the event publisher.
func Connect(cfg config.MQTTConfig) (mqtt.Client, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("kioskd-%d", time.Now().UnixNano())
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}
