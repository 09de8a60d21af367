// Package mqtt is the controller's broker connection. Everything external
// moves over it: valve commands and sensor reports through a
// Zigbee2MQTT-style device bridge, operator commands and state under the
// verdant/ prefix, and a retained liveness message with a last-will so an
// unexpected controller death is visible to whoever is watching.
//
//	Verdant Core <-> MQTT Broker <-> Device Bridge / Dashboards
//
// The client reconnects on its own and replays subscriptions when the
// session comes back. Topic shapes live in Topics; no other package
// concatenates topic strings by hand.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{DevicePrefix: cfg.MQTT.Topics.DevicePrefix}
//
//	// Watch a moisture sensor
//	err = client.Subscribe(topics.DeviceState("soil_front"), 1,
//		func(topic string, payload []byte) error {
//			return handleSensorReport(payload)
//		})
//
//	// Open a valve
//	client.Publish(topics.DeviceCommand("valve_front"), []byte(`{"state":"ON"}`), 1, false)
//
// Brokers exposed beyond the local network should run with TLS
// (broker.tls: true) and per-user ACLs; payloads themselves are plain
// JSON with no encryption of their own.
package mqtt
