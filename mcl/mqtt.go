package mcl

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ScanHandler is called for every scan payload received on the scan topic.
// A nil scan with a non-nil error signals a payload that failed to decode.
type ScanHandler func(scan *RangeScan, err error)

// MapHandler is called for every map payload received on the map topic.
type MapHandler func(grid *OccupancyGrid, err error)

// MQTTClient delivers scans and occupancy maps from the broker to the
// perception core. It is the transport adapter; the orchestrator never sees
// MQTT types.
type MQTTClient struct {
	client      mqtt.Client
	config      *MQTTConfig
	scanHandler ScanHandler
	mapHandler  MapHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT builds and connects an MQTT client for the configured broker.
// Returns nil (and no error) when no broker is configured, which disables
// the transport. Credentials can be overridden via MQTT_USERNAME and
// MQTT_PASSWORD environment variables.
func InitMQTT(config *MQTTConfig, scans ScanHandler, maps MapHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = config.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: no broker configured")
		return nil, nil
	}
	if config.ScanTopic == "" {
		return nil, fmt.Errorf("MQTT enabled but no scan topic configured")
	}

	c := &MQTTClient{
		config:      config,
		scanHandler: scans,
		mapHandler:  maps,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := config.ClientID
	if clientID == "" {
		clientID = "gridloc"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Scans must reach the orchestrator in arrival order.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)

	go c.connectWithRetry()
	return c, nil
}

// connectWithRetry connects with exponential backoff until it succeeds.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("connecting to MQTT broker...")
		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("retrying MQTT connection in %v", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the scan and map topics. Paho replays this on
// every reconnect, so subscriptions survive broker restarts.
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	log.Printf("MQTT connected, subscribing to %s", c.config.ScanTopic)

	token := client.Subscribe(c.config.ScanTopic, 0, c.handleScanMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("error subscribing to %s: %v", c.config.ScanTopic, token.Error())
	}

	if c.config.MapTopic != "" {
		log.Printf("subscribing to %s", c.config.MapTopic)
		token := client.Subscribe(c.config.MapTopic, 0, c.handleMapMessage)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("error subscribing to %s: %v", c.config.MapTopic, token.Error())
		}
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// handleScanMessage decodes a scan payload and hands it to the scan handler.
func (c *MQTTClient) handleScanMessage(client mqtt.Client, msg mqtt.Message) {
	if c.scanHandler == nil {
		return
	}
	jsonBytes, err := DecodePayload(msg.Payload())
	if err != nil {
		c.scanHandler(nil, err)
		return
	}
	scan, err := ParseScanJSON(jsonBytes)
	c.scanHandler(scan, err)
}

// handleMapMessage decodes a map payload and hands it to the map handler.
func (c *MQTTClient) handleMapMessage(client mqtt.Client, msg mqtt.Message) {
	if c.mapHandler == nil {
		return
	}
	log.Printf("received map payload (topic: %s, size: %d bytes)", msg.Topic(), len(msg.Payload()))
	jsonBytes, err := DecodePayload(msg.Payload())
	if err != nil {
		c.mapHandler(nil, err)
		return
	}
	grid, err := ParseGridJSON(jsonBytes)
	c.mapHandler(grid, err)
}

// IsConnected reports whether the client currently holds a connection.
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the connection.
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("disconnecting from MQTT broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// Client returns the underlying paho client for publishing.
func (c *MQTTClient) Client() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock builds an MQTTClient around a provided mqtt.Client.
// Used by tests with the mock client.
func newMQTTClientWithMock(client mqtt.Client, config *MQTTConfig, scans ScanHandler, maps MapHandler) *MQTTClient {
	return &MQTTClient{
		client:      client,
		config:      config,
		scanHandler: scans,
		mapHandler:  maps,
	}
}
