package mqtt

import "fmt"

// maxPayloadBytes caps outbound payloads at 1 MiB, in line with common
// broker defaults. History responses are the largest payloads this
// controller emits and sit well under the cap.
const maxPayloadBytes = 1 << 20

// Publish sends payload to topic and waits for broker acknowledgment.
//
// Retained messages should carry state (scheduler state, zone state) so
// late subscribers catch up immediately. Valve commands and run events
// must never be retained: a retained "ON" replayed to a reconnecting
// valve would open it out of band.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadBytes {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d byte limit",
			ErrPublishFailed, len(payload), maxPayloadBytes)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("%w: no ack after %v", ErrPublishFailed, opTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// validate rejects the argument mistakes shared by Publish and Subscribe.
func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
