package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/docpipe/rag-go/internal/logger"
	"go.uber.org/zap"
)

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// IngestResult 单个对象的摄取结果事件
type IngestResult struct {
	Source     string    `json:"source"`
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Status     string    `json:"status"` // completed / failed
	Chunks     int       `json:"chunks"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

var globalProducer *Producer

// InitProducer 初始化Kafka生产者
func InitProducer(brokers []string, topic string) error {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second
	// 幂等生产要求单连接内串行发送
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	globalProducer = &Producer{
		producer: producer,
		topic:    topic,
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return nil
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// SendResult 发送摄取结果到Kafka
func (p *Producer) SendResult(msg *IngestResult) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("Kafka生产者未初始化")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.Source),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("bucket"),
				Value: []byte(msg.Bucket),
			},
			{
				Key:   []byte("status"),
				Value: []byte(msg.Status),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		logger.Error("发送Kafka消息失败", zap.Error(err))
		return fmt.Errorf("发送消息失败: %w", err)
	}

	logger.Debug("Kafka消息发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("source", msg.Source))

	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// SendIngestResult 发送摄取结果（便捷方法），Kafka未配置时静默跳过
func SendIngestResult(source, bucket, key, status string, chunks int, procErr error, duration time.Duration) error {
	producer := GetProducer()
	if producer == nil {
		logger.Warn("Kafka生产者未初始化，跳过结果发送")
		return nil
	}

	msg := &IngestResult{
		Source:     source,
		Bucket:     bucket,
		Key:        key,
		Status:     status,
		Chunks:     chunks,
		DurationMS: duration.Milliseconds(),
		Timestamp:  time.Now(),
	}
	if procErr != nil {
		msg.Error = procErr.Error()
	}

	return producer.SendResult(msg)
}
