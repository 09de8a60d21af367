package mqtt

import "fmt"

// Subscribe registers handler for topic and waits for the broker to
// confirm the subscription. Standard MQTT wildcards apply: the sensor
// reader listens on "zigbee2mqtt/+" to cover every device under the
// configured prefix.
//
// The subscription survives reconnects; the client re-subscribes
// automatically whenever the session comes back.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Record before subscribing so a reconnect racing this call still
	// picks the topic up during replay.
	c.mu.Lock()
	c.subs[topic] = sub{qos: qos, handler: handler}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, c.dispatch(handler))
	if !token.WaitTimeout(opTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: no ack after %v", ErrSubscribeFailed, opTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (c *Client) forget(topic string) {
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()
}
