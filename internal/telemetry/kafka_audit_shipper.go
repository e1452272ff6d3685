package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	cfg "github.com/KlinikCare/attendance-service/internal/config"
)

// KafkaAuditShipper ships audit and alert events to Kafka through a bounded
// queue. Publishing never blocks the caller: on backpressure the event is
// dropped rather than delaying a check-in decision.
type KafkaAuditShipper struct {
	cfg     cfg.KafkaAuditConfig
	wAudit  *kafka.Writer
	wAlerts *kafka.Writer
	ch      chan any
	stop    chan struct{}
}

func NewKafkaAuditShipper(cfgIn cfg.KafkaAuditConfig) (*KafkaAuditShipper, error) {
	c := cfgIn
	if !c.Enabled {
		return &KafkaAuditShipper{cfg: c, ch: make(chan any), stop: make(chan struct{})}, nil
	}
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 2 * time.Second
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = c.BatchSize * 4
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}

	tr := &kafka.Transport{
		DialTimeout: c.DialTimeout,
	}
	if c.TLS {
		tr.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	var wAudit, wAlerts *kafka.Writer
	if c.TopicAudit != "" {
		wAudit = &kafka.Writer{
			Addr:                   kafka.TCP(c.Brokers...),
			Topic:                  c.TopicAudit,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Transport:              tr,
			AllowAutoTopicCreation: false,
			Async:                  true,
			BatchTimeout:           c.FlushEvery,
			BatchSize:              c.BatchSize,
			WriteTimeout:           c.WriteTimeout,
		}
	}
	if c.TopicAlerts != "" {
		wAlerts = &kafka.Writer{
			Addr:                   kafka.TCP(c.Brokers...),
			Topic:                  c.TopicAlerts,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Transport:              tr,
			AllowAutoTopicCreation: false,
			Async:                  true,
			BatchTimeout:           c.FlushEvery,
			BatchSize:              c.BatchSize,
			WriteTimeout:           c.WriteTimeout,
		}
	}

	return &KafkaAuditShipper{
		cfg:     c,
		wAudit:  wAudit,
		wAlerts: wAlerts,
		ch:      make(chan any, c.QueueCapacity),
		stop:    make(chan struct{}),
	}, nil
}

func (s *KafkaAuditShipper) Start() {
	if !s.cfg.Enabled {
		return
	}
	go s.loop()
}

func (s *KafkaAuditShipper) Stop(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	close(s.stop)
	// drain briefly
	drain := time.After(500 * time.Millisecond)
	for {
		select {
		case ev := <-s.ch:
			_ = s.dispatch(ev)
		case <-drain:
			if s.wAudit != nil {
				_ = s.wAudit.Close()
			}
			if s.wAlerts != nil {
				_ = s.wAlerts.Close()
			}
			return
		}
	}
}

func (s *KafkaAuditShipper) Publish(ev any) {
	if !s.cfg.Enabled {
		return
	}
	select {
	case s.ch <- ev:
	default:
		// drop on backpressure
	}
}

// Enabled reports whether events actually leave the process.
func (s *KafkaAuditShipper) Enabled() bool {
	return s.cfg.Enabled
}

// QueueDepth is the number of events waiting in the bounded queue.
func (s *KafkaAuditShipper) QueueDepth() int {
	return len(s.ch)
}

func (s *KafkaAuditShipper) loop() {
	for {
		select {
		case ev := <-s.ch:
			_ = s.dispatch(ev)
		case <-s.stop:
			for {
				select {
				case ev := <-s.ch:
					_ = s.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *KafkaAuditShipper) dispatch(ev any) error {
	now := time.Now().UTC()
	m := map[string]any{}
	b, _ := json.Marshal(ev)
	_ = json.Unmarshal(b, &m)
	if _, ok := m["@timestamp"]; !ok {
		m["@timestamp"] = now
	}
	payload, _ := json.Marshal(m)

	key := func(field string) []byte {
		if v, ok := m[field]; ok && v != nil {
			if str, ok := v.(string); ok && str != "" {
				return []byte(str)
			}
		}
		return nil
	}

	switch ev.(type) {
	case AlertEvent:
		if s.wAlerts == nil {
			return nil
		}
		return s.wAlerts.WriteMessages(context.Background(), kafka.Message{
			Key:   key("user_id"),
			Value: payload,
			Time:  now,
		})
	default:
		if s.wAudit == nil {
			return nil
		}
		return s.wAudit.WriteMessages(context.Background(), kafka.Message{
			Key:   key("user_id"),
			Value: payload,
			Time:  now,
		})
	}
}
