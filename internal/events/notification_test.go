package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minioNotification = `{
  "EventName": "s3:ObjectCreated:Put",
  "Key": "documents/report.txt",
  "Records": [
    {
      "eventVersion": "2.0",
      "eventSource": "minio:s3",
      "eventTime": "2025-11-02T10:00:00.000Z",
      "eventName": "s3:ObjectCreated:Put",
      "s3": {
        "bucket": {"name": "documents"},
        "object": {"key": "report.txt", "size": 2048, "contentType": "text/plain"}
      }
    }
  ]
}`

const awsNotification = `{
  "Records": [
    {
      "eventVersion": "2.1",
      "eventSource": "aws:s3",
      "eventTime": "2025-11-02T10:00:00.000Z",
      "eventName": "s3:ObjectCreated:Put",
      "s3": {
        "bucket": {"name": "my-bucket"},
        "object": {"key": "folder%2Fmy+file.pdf", "size": 4096}
      }
    },
    {
      "eventVersion": "2.1",
      "eventSource": "aws:s3",
      "eventTime": "2025-11-02T10:01:00.000Z",
      "eventName": "s3:ObjectRemoved:Delete",
      "s3": {
        "bucket": {"name": "my-bucket"},
        "object": {"key": "gone.txt"}
      }
    }
  ]
}`

func TestParseNotification_MinIO(t *testing.T) {
	refs, err := ParseNotification([]byte(minioNotification))
	require.NoError(t, err)
	require.Len(t, refs, 1)

	assert.Equal(t, "documents", refs[0].Bucket)
	assert.Equal(t, "report.txt", refs[0].Key)
	assert.Equal(t, int64(2048), refs[0].Size)
	assert.Equal(t, "text/plain", refs[0].ContentType)
	assert.Equal(t, "s3://documents/report.txt", refs[0].Source())
}

func TestParseNotification_AWSKeyDecoding(t *testing.T) {
	refs, err := ParseNotification([]byte(awsNotification))
	require.NoError(t, err)
	// 删除事件被过滤掉
	require.Len(t, refs, 1)

	// %2F解码为斜杠，加号解码为空格
	assert.Equal(t, "folder/my file.pdf", refs[0].Key)
	assert.Equal(t, "s3://my-bucket/folder/my file.pdf", refs[0].Source())
}

func TestParseNotification_IgnoresOtherSources(t *testing.T) {
	payload := `{
      "Records": [
        {
          "eventSource": "gcs:storage",
          "eventName": "s3:ObjectCreated:Put",
          "s3": {"bucket": {"name": "b"}, "object": {"key": "k"}}
        }
      ]
    }`
	refs, err := ParseNotification([]byte(payload))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestParseNotification_MissingFields(t *testing.T) {
	payload := `{
      "Records": [
        {
          "eventSource": "minio:s3",
          "eventName": "s3:ObjectCreated:Put",
          "s3": {"bucket": {"name": ""}, "object": {"key": "k"}}
        }
      ]
    }`
	refs, err := ParseNotification([]byte(payload))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestParseNotification_InvalidJSON(t *testing.T) {
	_, err := ParseNotification([]byte("{not json"))
	assert.Error(t, err)
}

func TestParseNotification_EmptyRecords(t *testing.T) {
	refs, err := ParseNotification([]byte(`{"Records": []}`))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestDecodeObjectKey_InvalidEncoding(t *testing.T) {
	// 非法编码原样返回
	assert.Equal(t, "bad%zzkey", decodeObjectKey("bad%zzkey"))
}

func TestParseSource_RoundTrip(t *testing.T) {
	ref := ObjectRef{Bucket: "documents", Key: "reports/q1 final.txt"}

	parsed, err := ParseSource(ref.Source())
	require.NoError(t, err)
	assert.Equal(t, ref.Bucket, parsed.Bucket)
	assert.Equal(t, ref.Key, parsed.Key)
}

func TestParseSource_Invalid(t *testing.T) {
	for _, source := range []string{"", "documents/k", "s3://", "s3://bucket", "s3://bucket/"} {
		_, err := ParseSource(source)
		assert.Error(t, err, "source %q", source)
	}
}
