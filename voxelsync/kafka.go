package voxelsync

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/Shopify/sarama"
)

// Optional Kafka activity logging.  When configured, sync events (joins,
// leaves, delta and snapshot exchanges) are published to an activity topic
// so collaboration sessions can be audited after the fact.

var (
	kafkaProducer sarama.AsyncProducer

	kafkaActivityTopicName string
)

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * 1024

// KafkaConfig describes kafka servers used for activity logging.
type KafkaConfig struct {
	TopicActivity string // if supplied, will override the default activity topic
	Servers       []string
}

// Initialize sets up the activity topic and async producer.  A nil or empty
// config leaves Kafka logging disabled.
func (kc KafkaConfig) Initialize(hostID string) error {
	if len(kc.Servers) == 0 {
		return nil
	}
	if kc.TopicActivity != "" {
		kafkaActivityTopicName = kc.TopicActivity
	} else {
		kafkaActivityTopicName = "voxelsync-activity-" + hostID
	}
	reg, err := regexp.Compile(`[^a-zA-Z0-9\\._\\-]+`)
	if err != nil {
		return err
	}
	kafkaActivityTopicName = reg.ReplaceAllString(kafkaActivityTopicName, "-")

	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = KafkaMaxMessageSize
	if kafkaProducer, err = sarama.NewAsyncProducer(kc.Servers, config); err != nil {
		return err
	}

	go func() {
		for err := range kafkaProducer.Errors() {
			Errorf("error on kafka send: %v\n", err)
		}
	}()
	Infof("Kafka topic for sync activity: %s\n", kafkaActivityTopicName)
	return nil
}

// KafkaShutdown makes sure that the kafka queue is flushed before stopping.
func KafkaShutdown() {
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			Errorf("Kafka producer had error on close: %v\n", err)
		} else {
			Infof("Successfully shut down kafka producer.\n")
		}
	}
}

// LogActivityToKafka publishes a sync activity record.  No-op unless Kafka
// was initialized.
func LogActivityToKafka(activity map[string]interface{}) {
	if kafkaProducer != nil {
		go func() {
			jsonmsg, err := json.Marshal(activity)
			if err != nil {
				Errorf("unable to marshal activity for kafka logging: %v\n", err)
				return
			}
			if err := kafkaProduceMsg(jsonmsg, kafkaActivityTopicName); err != nil {
				Errorf("unable to publish activity: %v\n", err)
			}
		}()
	}
}

func kafkaProduceMsg(value []byte, topicName string) (err error) {
	if kafkaProducer == nil {
		return nil
	}
	timeKey := sarama.StringEncoder(strconv.FormatInt(time.Now().UnixNano(), 10))
	msg := &sarama.ProducerMessage{Topic: topicName, Value: sarama.ByteEncoder(value), Key: timeKey}
	kafkaProducer.Input() <- msg
	return nil
}
