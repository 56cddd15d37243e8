// Package mqtt provides MQTT client connectivity for fluidcore.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// fluidcore uses MQTT as the message bus between the execution core and
// instrument bridge processes (one per physical liquid handler). The broker
// decouples the core from vendor firmware protocols.
//
//	fluidcore ↔ MQTT Broker ↔ Instrument Bridges
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to acknowledgements from all instruments
//	err = client.Subscribe(mqtt.Topics{}.AllInstrumentAcks(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.InstrumentCommand("fluent-01")
//	client.Publish(topic, payload, 1, false)
package mqtt
