package events

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// objectCreatedPrefix 仅对象创建事件触发摄取
const objectCreatedPrefix = "s3:ObjectCreated:"

// Notification S3风格的桶通知载荷，AWS与MinIO两种来源共用
type Notification struct {
	EventName string        `json:"EventName,omitempty"`
	Key       string        `json:"Key,omitempty"`
	Records   []EventRecord `json:"Records"`
}

// EventRecord 通知中的单条事件记录
type EventRecord struct {
	EventVersion string   `json:"eventVersion"`
	EventSource  string   `json:"eventSource"`
	EventTime    string   `json:"eventTime"`
	EventName    string   `json:"eventName"`
	S3           S3Entity `json:"s3"`
}

// S3Entity 事件指向的桶与对象
type S3Entity struct {
	Bucket S3Bucket `json:"bucket"`
	Object S3Object `json:"object"`
}

type S3Bucket struct {
	Name string `json:"name"`
}

type S3Object struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ETag        string `json:"eTag,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// ObjectRef 解析后的待摄取对象
type ObjectRef struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	EventName   string
	EventTime   string
}

// Source 对象的来源标识
func (o ObjectRef) Source() string {
	return fmt.Sprintf("s3://%s/%s", o.Bucket, o.Key)
}

// ParseSource 把s3://bucket/key形式的来源标识还原为对象引用
func ParseSource(source string) (ObjectRef, error) {
	rest, ok := strings.CutPrefix(source, "s3://")
	if !ok {
		return ObjectRef{}, fmt.Errorf("来源标识必须以s3://开头: %q", source)
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return ObjectRef{}, fmt.Errorf("来源标识缺少bucket或key: %q", source)
	}

	return ObjectRef{Bucket: bucket, Key: key}, nil
}

// ParseNotification 解析桶通知，只保留对象创建事件
func ParseNotification(data []byte) ([]ObjectRef, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("解析桶通知失败: %w", err)
	}

	refs := make([]ObjectRef, 0, len(n.Records))
	for _, record := range n.Records {
		if record.EventSource != "aws:s3" && record.EventSource != "minio:s3" {
			continue
		}
		if !strings.HasPrefix(record.EventName, objectCreatedPrefix) {
			continue
		}
		if record.S3.Bucket.Name == "" || record.S3.Object.Key == "" {
			continue
		}

		refs = append(refs, ObjectRef{
			Bucket:      record.S3.Bucket.Name,
			Key:         decodeObjectKey(record.S3.Object.Key),
			Size:        record.S3.Object.Size,
			ContentType: record.S3.Object.ContentType,
			EventName:   record.EventName,
			EventTime:   record.EventTime,
		})
	}

	return refs, nil
}

// decodeObjectKey 通知里的对象键是URL编码的，加号表示空格
func decodeObjectKey(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}
